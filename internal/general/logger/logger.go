package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes single-line JSON log entries through a zap core. Each
// entry carries the service name, hostname, an event action tag, and the
// request/device correlation ids found in the context.
type Logger struct {
	service  string
	hostname string
	zl       *zap.Logger
}

// New creates a structured logger for the given service.
func New(service string) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "level"
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zapcore.DebugLevel,
	)

	zl := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hn),
	)

	return &Logger{service: service, hostname: hn, zl: zl}
}

// Sync flushes buffered entries; call on shutdown.
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

// fields assembles the per-entry zap fields.
func (l *Logger) fields(ctx context.Context, action string, details any) []zap.Field {
	fs := make([]zap.Field, 0, 4)
	fs = append(fs, zap.String("action", safeAction(action)))
	if id := requestID(ctx); id != "" {
		fs = append(fs, zap.String("request_id", id))
	}
	if id := deviceID(ctx); id != "" {
		fs = append(fs, zap.String("device_id", id))
	}
	if details != nil {
		fs = append(fs, zap.Any("details", details))
	}
	return fs
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.zl.Debug(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.zl.Info(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Warn writes a WARN line with optional details.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.zl.Warn(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Error writes an ERROR line and attaches the error.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	fs := l.fields(ctx, action, details)
	if err != nil {
		fs = append(fs, zap.Error(err))
	}
	l.zl.Error(strings.TrimSpace(msg), fs...)
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "fleettrack_request_id"
	ctxKeyDeviceID  ctxKey = "fleettrack_device_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithDeviceID returns a new context carrying device_id.
func (l *Logger) WithDeviceID(ctx context.Context, deviceID string) context.Context {
	if strings.TrimSpace(deviceID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyDeviceID, deviceID)
}

// requestID extracts request_id from ctx (if any).
func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// deviceID extracts device_id from ctx (if any).
func deviceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxKeyDeviceID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// safeAction never lets an empty action through.
func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
