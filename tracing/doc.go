// Package tracing wraps OpenTelemetry so scenario runs and their workers can
// be recorded as spans without the rest of the code importing otel directly.
package tracing
