// Package middleware provides HTTP middleware for the relay's endpoints.
//
// This package includes:
//   - OpenTelemetry tracing of HTTP requests, including WebSocket upgrades
//   - Prometheus request metrics
//
// Both wrap the response writer with chi's WrapResponseWriter, which keeps
// http.Hijacker working for WebSocket upgrades.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry())
//	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//
// Routes are labelled with their chi route pattern, so path parameters do
// not create new label values.
package middleware
