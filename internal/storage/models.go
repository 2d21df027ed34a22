package storage

// Service is one row of the services table.
type Service struct {
	ID          string
	Name        string
	Text        string
	URL         string
	Icon        string
	Category    string
	TokenAccept string
	// TokenKeyName is nil when the service has no token_key_names row.
	TokenKeyName *TokenKeyName
}

// TokenKeyName is one row of the token_key_names table.
type TokenKeyName struct {
	Header string
	URL    string
}
