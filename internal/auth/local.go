package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// LocalProvider issues and validates HS256 tokens for the users listed in
// configuration. The token subject is the username.
type LocalProvider struct {
	secret []byte
	ttl    time.Duration
	users  map[string]string
	now    func() time.Time
}

// NewLocalProvider creates a local token provider. It is disabled without a
// JWT secret.
func NewLocalProvider(cfg config.AuthConfig) *LocalProvider {
	users := make(map[string]string, len(cfg.Users))
	for name, hash := range cfg.Users {
		users[name] = hash
	}
	return &LocalProvider{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.JWTTTL,
		users:  users,
		now:    time.Now,
	}
}

func (p *LocalProvider) Name() string  { return "local" }
func (p *LocalProvider) Enabled() bool { return len(p.secret) > 0 }

// Login checks a username and password and returns a signed token.
func (p *LocalProvider) Login(username, password string) (string, error) {
	hash, ok := p.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, hash)
	if err != nil {
		log.Error().Err(err).Str("user", username).Msg("Stored password hash is unusable")
		return "", ErrInvalidCredentials
	}
	if !match {
		return "", ErrInvalidCredentials
	}
	return p.IssueToken(username)
}

// IssueToken signs a token for username without checking a password.
func (p *LocalProvider) IssueToken(username string) (string, error) {
	if !p.Enabled() {
		return "", fmt.Errorf("local auth has no JWT secret")
	}
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:  username,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if p.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate validates the bearer token. Requests without one are left to
// the next provider.
func (p *LocalProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, fmt.Errorf("could not validate credentials: %w", err)
	}
	if _, ok := p.users[claims.Subject]; !ok {
		return nil, fmt.Errorf("could not validate credentials: unknown user %q", claims.Subject)
	}

	identity := &contracts.Identity{
		Subject:     claims.Subject,
		DisplayName: claims.Subject,
		Provider:    "local",
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
