package cache

import (
	"net/http"
	"time"
)

// StoredResponse represents a cached HTTP response.
type StoredResponse struct {
	// Status is the HTTP status code
	Status int `json:"status"`

	// Header holds the response headers
	Header http.Header `json:"headers"`

	// Body is the response body
	Body []byte `json:"body"`

	// URL is the URL the response was fetched from
	URL string `json:"url"`

	// StoredAt is when the response was written
	StoredAt time.Time `json:"stored_at"`
}

// OK reports whether the status is 2xx.
func (s *StoredResponse) OK() bool {
	return s.Status >= 200 && s.Status <= 299
}

// Age returns how long ago the response was stored.
func (s *StoredResponse) Age() time.Duration {
	if s.StoredAt.IsZero() {
		return 0
	}
	return time.Since(s.StoredAt)
}
