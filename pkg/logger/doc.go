// Package logger builds log/slog loggers for the service and provides
// attribute helpers with stable keys (user_id, attempt_id, plan, ...), so log
// queries do not depend on how individual call sites spell them.
//
// Context extractors registered with WithContextExtractors run on every record
// and inject request-scoped values such as the request id.
package logger
