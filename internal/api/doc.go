// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/searches runs a lead search synchronously for the identity in
//     the X-Client-ID header.
//   - GET /v1/searches/{id} returns a stored report.
package api
