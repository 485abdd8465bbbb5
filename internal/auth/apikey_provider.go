package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
)

var errInvalidAPIKey = errors.New("invalid API key")

// APIKeyProvider accepts the static keys configured in ATLAS_API_KEYS.
// Only their SHA-256 digests are held in memory.
type APIKeyProvider struct {
	digests [][sha256.Size]byte
}

// NewAPIKeyProvider creates an API key provider. Blank keys are ignored and
// the provider is disabled when none remain.
func NewAPIKeyProvider(keys []string) *APIKeyProvider {
	p := &APIKeyProvider{}
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			p.digests = append(p.digests, sha256.Sum256([]byte(key)))
		}
	}
	return p
}

func (p *APIKeyProvider) Name() string  { return "apikey" }
func (p *APIKeyProvider) Enabled() bool { return len(p.digests) > 0 }

// Authenticate looks for a key in the X-API-Key header, the api_key query
// parameter, or the bearer token. A bearer token that is not a known key is
// left to the next provider; an unknown X-API-Key is rejected.
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	if bearer := bearerToken(r); bearer != "" {
		digest, ok := p.match(bearer)
		if !ok {
			return nil, nil
		}
		return keyIdentity(digest), nil
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		// EventSource clients cannot set headers.
		key = r.URL.Query().Get("api_key")
	}
	if key == "" {
		return nil, nil
	}
	digest, ok := p.match(key)
	if !ok {
		return nil, errInvalidAPIKey
	}
	return keyIdentity(digest), nil
}

// match compares the candidate against every configured key so the time
// taken does not depend on which key matched.
func (p *APIKeyProvider) match(candidate string) ([sha256.Size]byte, bool) {
	sum := sha256.Sum256([]byte(candidate))
	found := 0
	for _, d := range p.digests {
		found |= subtle.ConstantTimeCompare(sum[:], d[:])
	}
	return sum, found == 1
}

func keyIdentity(digest [sha256.Size]byte) *contracts.Identity {
	return &contracts.Identity{
		Subject:     "apikey:" + hex.EncodeToString(digest[:8]),
		Provider:    "apikey",
		DisplayName: "API key client",
	}
}
