package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the configured origins plus any origin on localhost or a
// private network address. Credentials are allowed and preflights cached
// for a day.
func CORS(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}

	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return set[strings.ToLower(origin)] || IsPrivateOrigin(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

// IsPrivateOrigin reports whether origin points at localhost, a loopback
// address or an RFC 1918 / RFC 4193 private address.
func IsPrivateOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
