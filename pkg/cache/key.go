package cache

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNotKeyable indicates a request that can never be cached.
// Only GET requests for absolute http(s) URLs are keyable.
var ErrNotKeyable = errors.New("request is not cacheable")

// RequestKey identifies a stored response by method and absolute URL.
type RequestKey struct {
	// Method is always GET for a valid key.
	Method string

	// URL is the absolute request URL without fragment.
	URL string
}

// NewRequestKey builds a key, rejecting non-GET methods and relative URLs.
func NewRequestKey(method, rawURL string) (RequestKey, error) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet {
		return RequestKey{}, fmt.Errorf("%w: method %s", ErrNotKeyable, method)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return RequestKey{}, fmt.Errorf("%w: %v", ErrNotKeyable, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return RequestKey{}, fmt.Errorf("%w: url %q is not absolute", ErrNotKeyable, rawURL)
	}
	u.Fragment = ""
	u.RawFragment = ""

	return RequestKey{Method: method, URL: u.String()}, nil
}

// KeyFromRequest builds the key of r. r.URL must be absolute.
func KeyFromRequest(r *http.Request) (RequestKey, error) {
	if r == nil || r.URL == nil {
		return RequestKey{}, fmt.Errorf("%w: nil request", ErrNotKeyable)
	}
	return NewRequestKey(r.Method, r.URL.String())
}

// ParseRequestKey parses the String form of a key.
func ParseRequestKey(s string) (RequestKey, error) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok {
		return RequestKey{}, fmt.Errorf("%w: malformed key %q", ErrInvalidEntry, s)
	}
	return NewRequestKey(method, rawURL)
}

// String returns the storage form of the key.
//
// Example:
//
//	GET http://localhost:8080/index.html
func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

func (k RequestKey) valid() bool {
	return k.Method == http.MethodGet && k.URL != ""
}
