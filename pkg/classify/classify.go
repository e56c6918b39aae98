// Package classify maps an intercepted request to the resource class that
// selects its caching strategy.
//
// Classification is a pure function of the request metadata, evaluated in
// fixed precedence order:
//
//  1. non-GET method: Ignored
//  2. non-http(s) scheme, or cross-origin and not allow-listed: Ignored
//  3. HTML accept header or navigate mode: Navigation
//  4. API path marker or backend host: APICall
//  5. anything else: StaticAsset
//
// An allow-listed cross-origin API request passes rule 2 and is classified
// by rule 4.
package classify

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/offline-shell/pkg/config"
)

// ResourceClass is the strategy selector of a request.
type ResourceClass int

const (
	// Ignored requests are not intercepted.
	Ignored ResourceClass = iota

	// Navigation is a request for an HTML document (network-first).
	Navigation

	// APICall is a request to an application backend (network-only).
	APICall

	// StaticAsset is any other intercepted request (cache-first).
	StaticAsset
)

// String returns the metrics label of the class.
func (c ResourceClass) String() string {
	switch c {
	case Navigation:
		return "navigation"
	case APICall:
		return "api"
	case StaticAsset:
		return "static"
	default:
		return "ignored"
	}
}

// Request is the metadata classification depends on.
type Request struct {
	Method string

	// URL is the absolute request URL.
	URL *url.URL

	// Accept is the Accept header.
	Accept string

	// Dest is the Sec-Fetch-Dest header ("document", "image", ...).
	Dest string

	// Mode is the Sec-Fetch-Mode header ("navigate", "cors", ...).
	Mode string
}

// FromHTTP extracts the classification metadata of r addressed to the
// absolute URL u.
func FromHTTP(r *http.Request, u *url.URL) Request {
	return Request{
		Method: r.Method,
		URL:    u,
		Accept: r.Header.Get("Accept"),
		Dest:   r.Header.Get("Sec-Fetch-Dest"),
		Mode:   r.Header.Get("Sec-Fetch-Mode"),
	}
}

// IsImage reports whether the request expects an image.
func (r Request) IsImage() bool {
	if r.Dest != "" {
		return r.Dest == "image"
	}
	return strings.HasPrefix(strings.TrimSpace(r.Accept), "image/")
}

// Classifier holds the origin rules of one application.
type Classifier struct {
	appOrigin    string
	allowed      map[string]struct{}
	apiMarkers   []string
	backendHosts []string
}

// New creates a classifier from a validated configuration.
func New(cfg config.Config) *Classifier {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}
	hosts := make([]string, len(cfg.BackendHosts))
	for i, h := range cfg.BackendHosts {
		hosts[i] = strings.ToLower(h)
	}
	return &Classifier{
		appOrigin:    strings.ToLower(cfg.AppOrigin),
		allowed:      allowed,
		apiMarkers:   cfg.APIMarkers,
		backendHosts: hosts,
	}
}

// Classify returns the resource class of req.
func (c *Classifier) Classify(req Request) ResourceClass {
	if req.Method != http.MethodGet {
		return Ignored
	}
	if req.URL == nil {
		return Ignored
	}

	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return Ignored
	}
	origin := scheme + "://" + strings.ToLower(req.URL.Host)
	if origin != c.appOrigin {
		if _, ok := c.allowed[origin]; !ok {
			return Ignored
		}
	}

	if strings.Contains(req.Accept, "text/html") || req.Mode == "navigate" {
		return Navigation
	}

	for _, marker := range c.apiMarkers {
		if marker != "" && strings.Contains(req.URL.Path, marker) {
			return APICall
		}
	}
	host := strings.ToLower(req.URL.Hostname())
	for _, h := range c.backendHosts {
		if h != "" && strings.Contains(host, h) {
			return APICall
		}
	}

	return StaticAsset
}
