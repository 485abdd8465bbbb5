package contracts

import (
	"context"
	"net/http"
	"time"
)

// ── Authentication ──────────────────────────────────────────

// Identity is an authenticated caller of the chat API.
type Identity struct {
	// Subject is the username, the OIDC subject, or "apikey:<hash prefix>".
	Subject     string `json:"subject"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	// Provider is the Name of the AuthProvider that produced the identity.
	Provider string `json:"provider"`
	// ExpiresAt is zero for credentials that do not expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// AuthProvider turns request credentials into an Identity.
//
// Authenticate returns (nil, nil) when the request carries no credentials the
// provider recognizes, so the next provider can try. A non-nil error means the
// credentials were recognized and are invalid; the request is rejected.
type AuthProvider interface {
	Name() string
	Enabled() bool
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// AuthProviderChain asks providers in registration order.
type AuthProviderChain interface {
	// Authenticate returns the first identity, the first error, or (nil, nil)
	// for anonymous requests.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
	RegisterProvider(provider AuthProvider)
}
