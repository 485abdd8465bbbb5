package middleware

import (
	"context"
	"testing"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
)

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	if got := Subject(ctx); got != Anonymous {
		t.Errorf("Subject() = %q, want %q", got, Anonymous)
	}
	if SetIdentity(ctx, nil) != ctx {
		t.Error("SetIdentity(nil) changed the context")
	}

	ctx = SetIdentity(ctx, &contracts.Identity{Subject: "alice", Provider: "local"})
	if got := Subject(ctx); got != "alice" {
		t.Errorf("Subject() = %q, want %q", got, "alice")
	}
	if id := GetIdentity(ctx); id == nil || id.Provider != "local" {
		t.Errorf("GetIdentity() = %+v, want local identity", id)
	}
}

func TestThreadID(t *testing.T) {
	ctx := context.Background()
	if got := GetThreadID(ctx); got != "" {
		t.Errorf("GetThreadID() = %q, want empty", got)
	}
	ctx = SetThreadID(ctx, "t-1")
	if got := GetThreadID(ctx); got != "t-1" {
		t.Errorf("GetThreadID() = %q, want %q", got, "t-1")
	}
}
