package logger

import (
	"log/slog"
	"time"
)

// Error records err under the key "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// AttemptID records a payment attempt identifier.
func AttemptID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("attempt_id", id)
}

// Plan records a billing plan name.
func Plan(plan string) slog.Attr {
	return slog.String("plan", plan)
}

// PaymentStatus records a payment attempt status.
func PaymentStatus(status string) slog.Attr {
	return slog.String("payment_status", status)
}

// Processor records the payment processor name.
func Processor(name string) slog.Attr {
	return slog.String("processor", name)
}

// Reason records a machine-readable reason code.
func Reason(code string) slog.Attr {
	return slog.String("reason", code)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Duration records d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64("duration_ms", d.Milliseconds())
}
