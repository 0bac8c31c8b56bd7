// Package logging defines the structured-logging interface used across the
// backend and its zap implementation.
package logging

import "context"

// Logger is a context-aware, structured logger. Pairs attached to ctx with
// WithFields are logged ahead of the call-site pairs.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "websocket bound", "user_id", userID, "channel", ch.ID())
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
