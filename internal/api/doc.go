// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /analyze runs one analysis; GET /analyze/test is a side-effect-free liveness check.
//   - GET /admin/leads, /admin/leads/export and /admin/health require the admin token.
//   - GET /health for liveness and GET /metrics for Prometheus scraping.
package api
