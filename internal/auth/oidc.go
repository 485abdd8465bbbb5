package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// identityTTL bounds how long a validated bearer token skips the userinfo call.
const identityTTL = 5 * time.Minute

// OIDCProvider validates bearer tokens by calling the identity provider's
// userinfo endpoint, found through its discovery document.
type OIDCProvider struct {
	discoveryURL string
	client       *http.Client
	identities   *gocache.Cache

	mu       sync.Mutex
	userinfo string
}

// NewOIDCProvider creates a provider for the discovery document at
// discoveryURL (…/.well-known/openid-configuration).
func NewOIDCProvider(discoveryURL string, client *http.Client) *OIDCProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCProvider{
		discoveryURL: discoveryURL,
		client:       client,
		identities:   gocache.New(identityTTL, 2*identityTTL),
	}
}

func (p *OIDCProvider) Name() string  { return "oidc" }
func (p *OIDCProvider) Enabled() bool { return p.discoveryURL != "" }

type userInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// Authenticate validates the bearer token against the userinfo endpoint.
func (p *OIDCProvider) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if cached, ok := p.identities.Get(key); ok {
		return cached.(*contracts.Identity), nil
	}

	endpoint, err := p.userinfoEndpoint(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invalid bearer token: userinfo returned %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("invalid bearer token: userinfo has no subject")
	}
	name := info.Name
	if name == "" {
		name = info.PreferredUsername
	}
	identity := &contracts.Identity{
		Subject:     info.Subject,
		Email:       info.Email,
		DisplayName: name,
		Provider:    "oidc",
		ExpiresAt:   time.Now().Add(identityTTL),
	}
	p.identities.SetDefault(key, identity)
	return identity, nil
}

func (p *OIDCProvider) userinfoEndpoint(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userinfo != "" {
		return p.userinfo, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.discoveryURL, nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch discovery document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch discovery document: status %d", resp.StatusCode)
	}
	var doc struct {
		UserinfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.UserinfoEndpoint == "" {
		return "", fmt.Errorf("discovery document has no userinfo_endpoint")
	}
	p.userinfo = doc.UserinfoEndpoint
	log.Info().Str("endpoint", p.userinfo).Msg("🔑 OIDC userinfo endpoint discovered")
	return p.userinfo, nil
}
