// Package status serves the daemon's state over HTTP.
//
// Routes:
//
//	GET /healthz    component health; 503 when any component is unhealthy
//	GET /status     daemon loop state with the last cycle report
//	GET /freshness  per-unit freshness, evaluated on request
//	GET /version    build information
package status
