// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// Keys for the loop position carried in context.
type (
	SlotKey      struct{}
	InstanceKey  struct{}
	StageKey     struct{}
	IterationKey struct{}
)

// WithSlot returns a context with the agent slot embedded.
func WithSlot(ctx context.Context, slot string) context.Context {
	return context.WithValue(ctx, SlotKey{}, slot)
}

// SlotFromContext returns the slot from context, or empty string if not set.
func SlotFromContext(ctx context.Context) string {
	if v := ctx.Value(SlotKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithInstance returns a context with the task instance ID embedded.
func WithInstance(ctx context.Context, instanceID string) context.Context {
	return context.WithValue(ctx, InstanceKey{}, instanceID)
}

// InstanceFromContext returns the instance ID from context, or empty string if not set.
func InstanceFromContext(ctx context.Context) string {
	if v := ctx.Value(InstanceKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithStage returns a context with the cycle stage embedded.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey{}, stage)
}

// StageFromContext returns the stage from context, or empty string if not set.
func StageFromContext(ctx context.Context) string {
	if v := ctx.Value(StageKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithIteration returns a context with the 1-based iteration number embedded.
func WithIteration(ctx context.Context, iteration int) context.Context {
	return context.WithValue(ctx, IterationKey{}, iteration)
}

// IterationFromContext returns the iteration from context, or 0 if not set.
func IterationFromContext(ctx context.Context) int {
	if v := ctx.Value(IterationKey{}); v != nil {
		return v.(int)
	}
	return 0
}
