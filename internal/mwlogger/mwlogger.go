// Package mwlogger puts a request- or task-scoped logger into context
package mwlogger

import (
	"context"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/helpers"
	"github.com/wb-go/wbf/zlog"
)

type loggerCtxKey struct{}

// NewMWLogger wraps the engine: every request gets an id (X-Request-Id or a fresh UUID) and a
// logger carrying it, reachable from the request context.
func NewMWLogger(next *ginext.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = helpers.CreateUUID()
		}
		w.Header().Set("X-Request-Id", reqID)

		logger := zlog.Logger.With().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
	})
}

// WithTask returns ctx carrying a logger tagged with the task and its channel.
func WithTask(ctx context.Context, taskID, serverID, channelID string) context.Context {
	logger := LoggerFromContext(ctx).With().
		Str("task_id", taskID).
		Str("server_id", serverID).
		Str("channel_id", channelID).
		Logger()
	return WithLogger(ctx, logger)
}

func WithLogger(ctx context.Context, logger zlog.Zerolog) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// LoggerFromContext extracts logger from context, falling back to the global one
func LoggerFromContext(ctx context.Context) zlog.Zerolog {
	if l, ok := ctx.Value(loggerCtxKey{}).(zlog.Zerolog); ok {
		return l
	}
	return zlog.Logger
}
