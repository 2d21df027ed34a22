package service

import (
	"context"
	"encoding/json"
	"strings"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// Token placement values of tokenType.
const (
	tokenTypeHeader = "header"
	tokenTypeURL    = "url"
)

// Remote fetches the service list from the campus API.
type Remote struct {
	client  JSONClient
	baseURL string
}

// NewRemote creates a service remote.
func NewRemote(client JSONClient, apiBaseURL string) *Remote {
	return &Remote{client: client, baseURL: apiBaseURL}
}

type itemDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	TokenAccept string `json:"tokenAccept"`
}

type tokenAcceptDTO struct {
	TokenType string `json:"tokenType"`
	TokenKey  string `json:"tokenKey"`
}

// Fetch loads the service list.
func (r *Remote) Fetch(ctx context.Context, accessToken string) ([]Item, error) {
	var dtos []itemDTO
	if err := r.client.GetJSON(ctx, r.baseURL+"/services", accessToken, &dtos); err != nil {
		return nil, domerrors.MapError(err)
	}

	items := make([]Item, 0, len(dtos))
	for _, d := range dtos {
		keyName, err := ParseTokenAccept(d.TokenAccept)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			ID:           d.ID,
			Name:         d.Name,
			Text:         d.Text,
			URL:          d.URL,
			Icon:         d.Icon,
			Category:     d.Category,
			TokenAccept:  d.TokenAccept,
			TokenKeyName: keyName,
		})
	}
	return items, nil
}

// ParseTokenAccept decodes the JSON-encoded tokenAccept descriptor.
// A tokenKey of the form "name=value" keeps only "name". An empty descriptor,
// or one naming neither a header nor a URL key, yields nil.
func ParseTokenAccept(raw string) (*TokenKeyName, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var entries []tokenAcceptDTO
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, domerrors.NewJSONParsingError("invalid tokenAccept: "+err.Error(), err)
	}

	var keyName TokenKeyName
	for _, e := range entries {
		name, _, _ := strings.Cut(e.TokenKey, "=")
		name = strings.TrimSpace(name)
		switch strings.ToLower(strings.TrimSpace(e.TokenType)) {
		case tokenTypeHeader:
			keyName.HeaderTokenKeyName = name
		case tokenTypeURL:
			keyName.URLTokenKeyName = name
		}
	}
	if keyName == (TokenKeyName{}) {
		return nil, nil
	}
	return &keyName, nil
}
