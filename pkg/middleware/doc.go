// Package middleware holds the portal's access control and request hardening.
//
// Gatekeeper sorts every path into one of three tiers:
//
//	public   "/", "/public/...", and the exempt anonymous endpoints
//	api      "/api/..." needs a session principal and the xsrftoken header
//	session  everything else needs a session principal
//
// A failed API check answers 401 with the standard api response body. A
// failed session check tears the session down and redirects to "/".
//
// SecurityHeaders adds the browser hardening headers, and RateLimit throttles
// the anonymous endpoints per client address using either LocalRateLimiter
// (golang.org/x/time/rate) or RedisRateLimiter (fixed window counters).
package middleware
