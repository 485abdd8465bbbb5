// Package middleware carries request-scoped values between the API layer and
// the orchestrator: the caller identity and the conversation thread id.
package middleware

import (
	"context"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
)

type contextKey int

const (
	identityKey contextKey = iota
	threadKey
)

// Anonymous is the subject reported for unauthenticated callers.
const Anonymous = "anonymous"

// SetIdentity attaches the authenticated caller. A nil identity leaves ctx
// unchanged.
func SetIdentity(ctx context.Context, identity *contracts.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the caller, or nil for anonymous requests.
func GetIdentity(ctx context.Context) *contracts.Identity {
	id, _ := ctx.Value(identityKey).(*contracts.Identity)
	return id
}

// Subject returns the caller's subject, or Anonymous.
func Subject(ctx context.Context) string {
	if id := GetIdentity(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return Anonymous
}

// SetThreadID attaches the conversation thread id.
func SetThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadKey, threadID)
}

// GetThreadID returns the thread id, or "" outside a chat turn.
func GetThreadID(ctx context.Context) string {
	id, _ := ctx.Value(threadKey).(string)
	return id
}
