// Package logx binds window and subscription fields to pslog loggers.
package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/schema"
)

type contextKey int

const (
	windowKey contextKey = iota
	subKey
)

// WithWindow annotates the logger with the window id if present.
func WithWindow(ctx context.Context, window schema.WindowID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if window != "" {
		if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == window {
			return log
		}
		log = log.With("window", window)
	}
	return log
}

// WithWindowTab annotates the logger with window and tab index.
func WithWindowTab(ctx context.Context, window schema.WindowID, index int) pslog.Logger {
	return WithWindow(ctx, window).With("tab", index)
}

// WithSubscription annotates the logger with a subscription id when available.
func WithSubscription(log pslog.Logger, id schema.SubscriptionID) pslog.Logger {
	if id != 0 {
		log = log.With("sub", uint64(id))
	}
	return log
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, window schema.WindowID) context.Context {
	if ctx == nil || window == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey, window)
}

// ContextWithWindowLogger attaches the logger and window marker to the context.
func ContextWithWindowLogger(ctx context.Context, log pslog.Logger, window schema.WindowID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithWindow(ctx, window)
}

// ContextWithSubscription stores the subscription marker on the context.
func ContextWithSubscription(ctx context.Context, id schema.SubscriptionID) context.Context {
	if ctx == nil || id == 0 {
		return ctx
	}
	return context.WithValue(ctx, subKey, id)
}

// SubscriptionFromContext returns the subscription marker, if any.
func SubscriptionFromContext(ctx context.Context) schema.SubscriptionID {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(subKey).(schema.SubscriptionID)
	return id
}

// CopyContextFields copies window/subscription markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if window, ok := src.Value(windowKey).(schema.WindowID); ok && window != "" {
		dst = ContextWithWindow(dst, window)
	}
	if id, ok := src.Value(subKey).(schema.SubscriptionID); ok && id != 0 {
		dst = ContextWithSubscription(dst, id)
	}
	return dst
}
