package api

import (
	"net/http"
	"net/url"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins are the local development front-end origins. They are
// always allowed.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// DefaultCORSOriginSuffixes admits preview deployments of the front end.
var DefaultCORSOriginSuffixes = []string{".vercel.app"}

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins are exact origins, compared without trailing slashes.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// AllowedOriginSuffixes admit any origin whose host ends with one of them.
	AllowedOriginSuffixes []string `yaml:"allowedOriginSuffixes"`
}

// ParseOrigins splits a comma-separated origin list, trimming whitespace and
// trailing slashes and dropping empty entries.
func ParseOrigins(csv string) []string {
	var out []string
	for _, o := range strings.Split(csv, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AllowOrigin reports whether a browser origin may call the API.
func (c CORSConfig) AllowOrigin(origin string) bool {
	return c.allowOriginFunc()(nil, origin)
}

func (c CORSConfig) allowOriginFunc() func(r *http.Request, origin string) bool {
	allowed := mapset.NewSet[string]()
	for _, o := range DefaultCORSOrigins {
		allowed.Add(o)
	}
	for _, o := range c.AllowedOrigins {
		allowed.Add(strings.TrimRight(o, "/"))
	}
	suffixes := c.AllowedOriginSuffixes

	return func(_ *http.Request, origin string) bool {
		origin = strings.TrimRight(origin, "/")
		if allowed.Contains(origin) {
			return true
		}
		if len(suffixes) == 0 {
			return false
		}
		u, err := url.Parse(origin)
		if err != nil || u.Hostname() == "" {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(host, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}

func (c CORSConfig) handler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc:  c.allowOriginFunc(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", RoleHeader, PrincipalHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
