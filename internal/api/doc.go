// Package api hosts the HTTP server, middleware, and REST handlers used by operators and the
// scoring agent. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/articles/{id}, /v1/articles?url= and /v1/articles/unprocessed?limit= for reads.
//   - POST /v1/articles/{id}/analysis to attach a scoring result.
//
// Routes under /v1 require X-API-Key when server.api_key is set.
package api
