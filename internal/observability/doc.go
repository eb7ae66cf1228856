// Package observability configures process-wide logging.
//
// Instrument installs a slog default logger writing text or JSON to stderr and,
// when an exporter is configured, fans every record out to OpenTelemetry logs
// through the otelslog bridge. Packages log through slog's default logger and
// never configure handlers themselves.
package observability
