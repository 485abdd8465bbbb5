// Package auth provides the authentication provider chain for the assistant.
//
// Providers:
//   - APIKeyProvider: static keys from configuration
//   - LocalProvider: HS256 tokens issued by POST /token for configured users
//   - OIDCProvider: bearer tokens checked against an identity provider's
//     userinfo endpoint
package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// ProviderChain implements contracts.AuthProviderChain. Providers are
// consulted in registration order.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []contracts.AuthProvider
}

// NewProviderChain creates an empty chain. An empty chain treats every
// request as anonymous.
func NewProviderChain() *ProviderChain {
	return &ProviderChain{}
}

// NewChain builds the chain for the configured auth mode: API keys first,
// then the local issuer or the OIDC userinfo check. The local provider is
// returned too because POST /token needs it; it is nil unless the mode is
// "local".
func NewChain(cfg config.AuthConfig, client *http.Client) (*ProviderChain, *LocalProvider) {
	chain := NewProviderChain()
	chain.RegisterProvider(NewAPIKeyProvider(cfg.APIKeys))

	var local *LocalProvider
	switch cfg.Mode {
	case "local":
		local = NewLocalProvider(cfg)
		chain.RegisterProvider(local)
	case "oidc":
		chain.RegisterProvider(NewOIDCProvider(cfg.OIDCURL, client))
	}
	log.Info().
		Str("mode", cfg.Mode).
		Strs("providers", chain.ListProviders()).
		Msg("🔑 Auth configured")
	return chain, local
}

func (c *ProviderChain) RegisterProvider(provider contracts.AuthProvider) {
	c.mu.Lock()
	c.providers = append(c.providers, provider)
	c.mu.Unlock()
}

// Authenticate asks each enabled provider in turn. A provider answers with
// an Identity (done), nil and nil (not its credential, keep going), or an
// error (the credential was its kind and is bad, reject). Nobody answering
// leaves the request anonymous.
func (c *ProviderChain) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	for _, p := range c.enabled() {
		identity, err := p.Authenticate(ctx, r)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Msg("Auth provider rejected request")
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}
	return nil, nil
}

// ListProviders returns the names of the enabled providers.
func (c *ProviderChain) ListProviders() []string {
	enabled := c.enabled()
	names := make([]string, len(enabled))
	for i, p := range enabled {
		names[i] = p.Name()
	}
	return names
}

func (c *ProviderChain) enabled() []contracts.AuthProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contracts.AuthProvider, 0, len(c.providers))
	for _, p := range c.providers {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
