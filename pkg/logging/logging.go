// Package logging provides structured logging for the application.
//
// Logs go to the configured writer through slog; when a Store is attached,
// every record is also teed into the bounded in-memory buffer backing the
// admin /api/logs endpoints.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with additional convenience methods.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
func New(level string, jsonFormat bool, w io.Writer) *Logger {
	return NewWithStore(level, jsonFormat, w, nil)
}

// NewWithStore creates a Logger that additionally mirrors every record into
// the given store.
func NewWithStore(level string, jsonFormat bool, w io.Writer, store *Store) *Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Format time as ISO 8601
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	if store != nil {
		handler = newStoreHandler(handler, store)
	}

	return &Logger{slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// WithComponent returns a logger tagged with a component name. The component
// becomes the "source" of entries in the admin log store.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithError returns a logger with an error attribute.
func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err.Error())
}

// RequestLogger creates a logger for HTTP request logging.
func (l *Logger) RequestLogger(method, path, remoteAddr, requestID string) *Logger {
	return l.With(
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"request_id", requestID,
	)
}

// storeHandler tees records into a Store while delegating to the inner
// handler. Attributes added via With are tracked so the component and error
// attrs survive logger derivation, which is how WithComponent and WithError
// attach them.
type storeHandler struct {
	inner     slog.Handler
	store     *Store
	component string
	errText   string
}

func newStoreHandler(inner slog.Handler, store *Store) *storeHandler {
	return &storeHandler{inner: inner, store: store}
}

func (h *storeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *storeHandler) Handle(ctx context.Context, r slog.Record) error {
	source := h.component
	errText := h.errText
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "component":
			source = a.Value.String()
		case "error":
			errText = a.Value.String()
		}
		return true
	})
	if source == "" {
		source = "app"
	}
	msg := r.Message
	if errText != "" {
		msg = msg + ": " + errText
	}
	h.store.append(r.Time, levelName(r.Level), source, msg)
	return h.inner.Handle(ctx, r)
}

func (h *storeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &storeHandler{
		inner:     h.inner.WithAttrs(attrs),
		store:     h.store,
		component: h.component,
		errText:   h.errText,
	}
	for _, a := range attrs {
		switch a.Key {
		case "component":
			next.component = a.Value.String()
		case "error":
			next.errText = a.Value.String()
		}
	}
	return next
}

func (h *storeHandler) WithGroup(name string) slog.Handler {
	return &storeHandler{inner: h.inner.WithGroup(name), store: h.store, component: h.component, errText: h.errText}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
