package portal

import (
	"context"
	"fmt"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// Remote fetches portal data from the campus API.
type Remote struct {
	client  JSONClient
	baseURL string
}

type categoryDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type infoDTO struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"publishedAt"`
}

// FetchCategories loads the category list.
func (r *Remote) FetchCategories(ctx context.Context) ([]CategoryItem, error) {
	var dtos []categoryDTO
	if err := r.client.GetJSON(ctx, r.baseURL+"/portal/categories", "", &dtos); err != nil {
		return nil, domerrors.MapError(err)
	}

	items := make([]CategoryItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, CategoryItem(d))
	}
	return items, nil
}

// FetchInfo loads the articles of one category.
func (r *Remote) FetchInfo(ctx context.Context, categoryID int) ([]InfoItem, error) {
	var dtos []infoDTO
	endpoint := fmt.Sprintf("%s/portal/categories/%d/info", r.baseURL, categoryID)
	if err := r.client.GetJSON(ctx, endpoint, "", &dtos); err != nil {
		return nil, domerrors.MapError(err)
	}

	items := make([]InfoItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, InfoItem(d))
	}
	return items, nil
}

type categoryRemote struct{ *Remote }

func (r categoryRemote) Fetch(ctx context.Context, _ struct{}) ([]CategoryItem, error) {
	return r.FetchCategories(ctx)
}

type infoRemote struct{ *Remote }

func (r infoRemote) Fetch(ctx context.Context, categoryID int) ([]InfoItem, error) {
	return r.FetchInfo(ctx, categoryID)
}
