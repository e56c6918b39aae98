// Package config holds the cache generation and application settings.
//
// App settings come from compiled defaults, optionally overlaid by a YAML file.
// Server settings (ports, backends, log level) come from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Generation names the stores of one cache generation.
// It is injected into the cache manager so tests can use isolated namespaces.
type Generation struct {
	// ShellName is the base name of the store seeded at install.
	ShellName string `yaml:"shellName"`

	// RuntimeName is the base name of the lazily filled store.
	RuntimeName string `yaml:"runtimeName"`

	// QueueName is the store holding deferred submissions.
	// It is not versioned so queued work survives generation changes.
	QueueName string `yaml:"queueName"`

	// VersionTag identifies the current generation (e.g. "v1.0.0").
	VersionTag string `yaml:"versionTag"`
}

// ShellStore returns the versioned shell store name.
func (g Generation) ShellStore() string {
	return tagged(g.ShellName, g.VersionTag)
}

// RuntimeStore returns the versioned runtime store name.
func (g Generation) RuntimeStore() string {
	return tagged(g.RuntimeName, g.VersionTag)
}

// QueueStore returns the queue store name.
func (g Generation) QueueStore() string {
	return g.QueueName
}

func tagged(name, version string) string {
	if version == "" {
		return name
	}
	return name + "-" + version
}

// Notifications holds the defaults used when a push payload omits a field.
type Notifications struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Icon  string `yaml:"icon"`
	Badge string `yaml:"badge"`
	Tag   string `yaml:"tag"`
}

// Config is the application configuration of the worker.
type Config struct {
	Generation Generation `yaml:"generation"`

	// AppOrigin is the origin the web client is served from (scheme://host[:port]).
	AppOrigin string `yaml:"appOrigin"`

	// Shell lists the paths prefetched into the shell store at install.
	Shell []string `yaml:"shell"`

	// OfflineURL is the document served when a navigation fails and has no cached copy.
	OfflineURL string `yaml:"offlineURL"`

	// AllowedOrigins are cross-origin hosts that may be intercepted.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// APIMarkers are path fragments identifying API calls.
	APIMarkers []string `yaml:"apiMarkers"`

	// BackendHosts are host fragments identifying API backends.
	BackendHosts []string `yaml:"backendHosts"`

	// ReportsEndpoint receives replayed offline reports.
	ReportsEndpoint string `yaml:"reportsEndpoint"`

	// SOSURL is opened when the help action fires and no client window is open.
	SOSURL string `yaml:"sosURL"`

	// ClientMatch identifies client windows already showing this application.
	ClientMatch string `yaml:"clientMatch"`

	// SkipWaiting activates a freshly installed generation immediately.
	SkipWaiting bool `yaml:"skipWaiting"`

	Notifications Notifications `yaml:"notifications"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Generation: Generation{
			ShellName:   "safealert",
			RuntimeName: "safealert-runtime",
			QueueName:   "offline-reports",
			VersionTag:  "v1.0.0",
		},
		AppOrigin: "http://localhost:8080",
		Shell: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"/web-app-manifest-192x192.png",
			"/web-app-manifest-512x512.png",
			"/apple-touch-icon.png",
		},
		OfflineURL: "/index.html",
		AllowedOrigins: []string{
			"https://api.anthropic.com",
			"https://fonts.googleapis.com",
			"https://fonts.gstatic.com",
		},
		APIMarkers:      []string{"/api/"},
		BackendHosts:    []string{"anthropic"},
		ReportsEndpoint: "/api/reports",
		SOSURL:          "/?action=sos",
		ClientMatch:     "safealert",
		SkipWaiting:     true,
		Notifications: Notifications{
			Title: "SafeAlert NG",
			Body:  "New safety alert",
			Icon:  "/web-app-manifest-192x192.png",
			Badge: "/web-app-manifest-192x192.png",
			Tag:   "safealert-notification",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes origins and checks required fields.
func (c *Config) Validate() error {
	if c.Generation.ShellName == "" || c.Generation.RuntimeName == "" || c.Generation.QueueName == "" {
		return fmt.Errorf("generation: shellName, runtimeName and queueName are required")
	}
	if c.Generation.ShellStore() == c.Generation.RuntimeStore() ||
		c.Generation.ShellStore() == c.Generation.QueueStore() ||
		c.Generation.RuntimeStore() == c.Generation.QueueStore() {
		return fmt.Errorf("generation: store names must be distinct")
	}

	origin, err := NormalizeOrigin(c.AppOrigin)
	if err != nil {
		return fmt.Errorf("appOrigin: %w", err)
	}
	c.AppOrigin = origin

	for i, o := range c.AllowedOrigins {
		n, err := NormalizeOrigin(o)
		if err != nil {
			return fmt.Errorf("allowedOrigins[%d]: %w", i, err)
		}
		c.AllowedOrigins[i] = n
	}

	for i, p := range c.Shell {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("shell[%d]: path %q must start with /", i, p)
		}
	}
	if c.OfflineURL == "" {
		c.OfflineURL = "/index.html"
	}
	if c.ReportsEndpoint == "" {
		return fmt.Errorf("reportsEndpoint is required")
	}
	return nil
}

// ResolveURL turns an app-relative path into an absolute URL on AppOrigin.
// Absolute URLs are returned unchanged.
func (c Config) ResolveURL(ref string) (string, error) {
	base, err := url.Parse(c.AppOrigin + "/")
	if err != nil {
		return "", err
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// NormalizeOrigin returns scheme://host[:port] in lower case.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must be absolute", raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
