// Package observability provides structured logging and tracing for the
// core library. Logging is built on zap behind a narrow Logger interface
// so consuming services can supply their own implementation; tracing
// bootstraps an OpenTelemetry provider with an optional OTLP exporter.
package observability
