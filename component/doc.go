// Package component defines lifecycle-managed infrastructure pieces of the
// orchestrator (the redis connection, the status server, telemetry exporters)
// and a registry that starts them in order and stops them in reverse.
package component
