package logging

import (
	"context"
	"slices"
)

type fieldsKey struct{}

// WithFields returns a copy of ctx carrying extra key-value pairs. Every
// entry logged with that ctx includes them after any pairs set earlier.
func WithFields(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, fieldsKey{}, append(slices.Clip(Fields(ctx)), args...))
}

// Fields returns the pairs attached to ctx by WithFields.
func Fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

// withContext puts the ctx pairs ahead of the call-site pairs.
func withContext(ctx context.Context, args []any) []any {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return args
	}
	return append(slices.Clip(fields), args...)
}
