package middleware

import "net/http"

var noCacheHeaders = map[string]string{
	"Cache-Control": "private, no-cache, no-store, must-revalidate",
	"Expires":       "-1",
	"Pragma":        "no-cache",
}

var securityHeaders = map[string]string{
	"Content-Security-Policy":   "script-src 'self' 'unsafe-inline' 'unsafe-eval';",
	"X-Frame-Options":           "SAMEORIGIN",
	"X-XSS-Protection":          "1",
	"Strict-Transport-Security": "max-age=31536000",
	"X-Content-Type-Options":    "nosniff",
}

// SecurityHeaders sets the browser hardening headers on every response and
// disables caching for everything outside the public area.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if !IsPublicPath(r.URL.Path) {
			for k, v := range noCacheHeaders {
				h.Set(k, v)
			}
		}
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}
