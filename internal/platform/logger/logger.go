package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
)

func init() {
	base = newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func newLogger(level, format string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		if lvl, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a bare stderr logger rather than losing output
		return zap.NewExample()
	}
	return l
}

// SetLogger replaces the process logger. Tests install an observer core here.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// L returns the process logger for callers that want zap fields directly.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Sync() {
	_ = L().Sync()
}

func Info(msg string, v ...interface{}) {
	text, fields := format(msg, v)
	L().Info(text, fields...)
}

func Warn(msg string, v ...interface{}) {
	text, fields := format(msg, v)
	L().Warn(text, fields...)
}

func Error(msg string, err error, v ...interface{}) {
	text, fields := format(msg, v)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(text, fields...)
}

// format keeps the printf-style call sites working. A trailing
// map[string]interface{} becomes structured fields and a lone nil argument
// (the old "no extra values" convention) is ignored.
func format(msg string, v []interface{}) (string, []zap.Field) {
	var fields []zap.Field
	if n := len(v); n > 0 {
		if details, ok := v[n-1].(map[string]interface{}); ok {
			for k, val := range details {
				fields = append(fields, zap.Any(k, val))
			}
			v = v[:n-1]
		}
	}
	if len(v) == 0 || (len(v) == 1 && v[0] == nil) {
		return msg, fields
	}
	return fmt.Sprintf(msg, v...), fields
}

// AuthEvent records a login, registration or refresh attempt.
func AuthEvent(event, identity string, success bool, ip, userAgent string) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("user_id", identity),
		zap.String("ip_address", ip),
		zap.String("user_agent", userAgent),
		zap.Bool("success", success),
	}
	if success {
		L().Info("Authentication successful: "+event, fields...)
		return
	}
	L().Warn("Authentication failed: "+event, fields...)
}

func APIAccess(method, endpoint, userID, ip string, duration time.Duration) {
	L().Info("API access: "+method+" "+endpoint,
		zap.String("user_id", userID),
		zap.String("ip_address", ip),
		zap.Duration("response_time", duration),
	)
}

func SecurityEvent(eventType, severity string, details map[string]interface{}, ip string) {
	L().Warn("Security event: "+eventType,
		zap.String("event_type", eventType),
		zap.String("severity", severity),
		zap.Any("details", details),
		zap.String("ip_address", ip),
	)
}
