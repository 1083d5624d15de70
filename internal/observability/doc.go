// Package observability provides structured logging, metrics, and tracing
// for the job gateway.
//
// Logging is zap-based; JSON in production and console output in
// development, optionally rotated to a file. Metrics are Prometheus
// collectors exposed on /metrics. Tracing is OpenTelemetry with an OTLP/HTTP
// exporter, or a no-op provider when disabled.
package observability
