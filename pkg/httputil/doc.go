// Package httputil provides the portal's HTTP plumbing: the api response
// shape, request parsing helpers and the generic middleware chain.
//
// # Responses
//
// Every API answer uses {"status": <code>, "statusMessage": <text>}:
//
//	httputil.WriteOK(w, "User created.")
//	httputil.WriteBadRequest(w, "Invalid username.")
//	httputil.WriteUnauthorized(w, "Unauthorized")
//
// WriteSuccess and WriteJSON encode arbitrary payloads.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: gatekeeper, security headers and rate limiting
package httputil
