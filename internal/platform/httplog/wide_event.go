// Package httplog emits one structured log line per HTTP request, carrying
// controller-domain context (device, reservation, session, command ids)
// instead of generic metadata.
package httplog

import (
	"context"
	"time"
)

type contextKey string

const wideEventKey contextKey = "wide_event"

// WideEvent captures request-scoped context for canonical logging.
type WideEvent struct {
	Timestamp  time.Time
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	DurationMS int64

	DeviceID      string
	ReservationID string
	SessionID     string
	CommandType   string

	ErrorKind    string
	ErrorMessage string
}

// FromContext retrieves the current request event from context, or an
// empty event if none is attached.
func FromContext(ctx context.Context) *WideEvent {
	if ctx == nil {
		return &WideEvent{}
	}
	if event, ok := ctx.Value(wideEventKey).(*WideEvent); ok && event != nil {
		return event
	}
	return &WideEvent{}
}

func withEvent(ctx context.Context, event *WideEvent) context.Context {
	return context.WithValue(ctx, wideEventKey, event)
}
