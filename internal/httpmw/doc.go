// Package httpmw provides HTTP middleware for the public API server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, panic recovery, request ID, client IP extraction,
// CORS, the flood guard, OTEL tracing, metrics, structured logging,
// and the chi router. Per-route concerns (admin API key, rate limit
// policies) are attached by the route packages.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. User-supplied data (query params, user-agent,
// headers) is intentionally excluded from logs to prevent PII leaks and
// log injection.
package httpmw
