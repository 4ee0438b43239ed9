// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/matches/fetch and GET /v1/matches/{gender}/{division}/{date}
//     for on-demand single-slot fetches.
package api
