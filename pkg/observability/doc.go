// Package observability provides the Prometheus metrics registry and
// OpenTelemetry tracing setup shared by warden components.
package observability
