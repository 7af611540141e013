// Package telemetry provides the broker's observability stack: zerolog
// structured logging, Prometheus metrics for the order lifecycle, and an
// OpenTelemetry tracer for controller operations.
package telemetry
