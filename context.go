// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package beanslog

import (
	"context"
)

// contextKeyType is unexported so the stored logger can never collide with a
// value set by another package.
type contextKeyType struct{}

var contextKey = contextKeyType{}

// WithContext returns a copy of ctx carrying logger. The HTTP middleware uses
// it to hand the request-scoped logger to downstream handlers; applications
// can do the same with a loader-built logger.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey, logger)
}

// FromContext returns the logger stored by WithContext. When ctx is nil or
// carries no logger, a null logger is returned so call sites can log
// unconditionally.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nullLogger
	}
	if logger, ok := ctx.Value(contextKey).(Logger); ok {
		return logger
	}
	return nullLogger
}
