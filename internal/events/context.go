package events

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
)

type contextKey int

const (
	loggerKey contextKey = iota
	operationIDKey
	secretNameKey
)

var (
	defaultMu     sync.RWMutex
	defaultLogger = &Logger{
		mu:     &sync.Mutex{},
		level:  InfoLevel,
		format: "text",
		output: os.Stderr,
		fields: make(map[string]interface{}),
	}
)

// FromContext extracts logger from context, falling back to the default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithOperationID tags the context and its logger with a fresh operation id.
func WithOperationID(ctx context.Context) context.Context {
	id := uuid.NewString()
	logger := FromContext(ctx).WithField("op_id", id)
	ctx = context.WithValue(ctx, operationIDKey, id)
	return WithLogger(ctx, logger)
}

// WithSecretName tags the context and its logger with a secret name. Only the
// name is logged, never the value.
func WithSecretName(ctx context.Context, name string) context.Context {
	logger := FromContext(ctx).WithField("secret", name)
	ctx = context.WithValue(ctx, secretNameKey, name)
	return WithLogger(ctx, logger)
}

// GetOperationID retrieves the operation id from context.
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetSecretName retrieves the secret name from context.
func GetSecretName(ctx context.Context) string {
	if name, ok := ctx.Value(secretNameKey).(string); ok {
		return name
	}
	return ""
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}
