package httplog

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Middleware emits a single structured log line per request via the given
// logger once the response has been written.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimiddleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = strings.TrimSpace(r.Header.Get(chimiddleware.RequestIDHeader))
			}
			if requestID != "" && w.Header().Get(chimiddleware.RequestIDHeader) == "" {
				w.Header().Set(chimiddleware.RequestIDHeader, requestID)
			}

			event := &WideEvent{
				Timestamp: start,
				RequestID: requestID,
				Method:    r.Method,
				Path:      r.URL.Path,
			}

			ctx := withEvent(r.Context(), event)
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				event.StatusCode = wrapped.statusCode
				event.DurationMS = time.Since(start).Milliseconds()
				emit(logger, event)
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}

func emit(logger *slog.Logger, event *WideEvent) {
	attrs := []any{
		slog.Time("timestamp", event.Timestamp),
		slog.String("method", event.Method),
		slog.String("path", event.Path),
		slog.Int("status_code", event.StatusCode),
		slog.Int64("duration_ms", event.DurationMS),
	}
	addOptional := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	addOptional("request_id", event.RequestID)
	addOptional("device_id", event.DeviceID)
	addOptional("reservation_id", event.ReservationID)
	addOptional("session_id", event.SessionID)
	addOptional("command_type", event.CommandType)
	if event.ErrorKind != "" {
		attrs = append(attrs, slog.String("error_kind", event.ErrorKind))
		addOptional("error_message", event.ErrorMessage)
	}

	switch {
	case event.StatusCode >= http.StatusInternalServerError:
		logger.Error("request_completed", attrs...)
	case event.StatusCode >= http.StatusBadRequest:
		logger.Warn("request_completed", attrs...)
	default:
		logger.Info("request_completed", attrs...)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) ReadFrom(reader io.Reader) (int64, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	if rf, ok := rw.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(reader)
	}
	return io.Copy(rw.ResponseWriter, reader)
}
