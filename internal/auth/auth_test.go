package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(header, value string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$"))

	ok, err := VerifyPassword("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{"", "plain", "$2b$12$abc", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$bad$AA$AA"} {
		_, err := VerifyPassword("x", hash)
		assert.ErrorIs(t, err, ErrInvalidHash, "hash %q", hash)
	}
}

func TestAPIKeyProvider(t *testing.T) {
	p := NewAPIKeyProvider([]string{" key-1 ", "", "key-2"})
	require.True(t, p.Enabled())
	ctx := context.Background()

	id, err := p.Authenticate(ctx, request("X-API-Key", "key-1"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "apikey", id.Provider)
	assert.True(t, strings.HasPrefix(id.Subject, "apikey:"))
	assert.Len(t, id.Subject, len("apikey:")+16)

	id, err = p.Authenticate(ctx, request("Authorization", "Bearer key-2"))
	require.NoError(t, err)
	assert.NotNil(t, id)

	// Unknown bearer tokens belong to the next provider.
	id, err = p.Authenticate(ctx, request("Authorization", "Bearer eyJhbGciOi.x.y"))
	assert.NoError(t, err)
	assert.Nil(t, id)

	_, err = p.Authenticate(ctx, request("X-API-Key", "nope"))
	assert.Error(t, err)

	id, err = p.Authenticate(ctx, request("", ""))
	assert.NoError(t, err)
	assert.Nil(t, id)

	assert.False(t, NewAPIKeyProvider(nil).Enabled())
	assert.False(t, NewAPIKeyProvider([]string{" ", ""}).Enabled())
}

func localConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	return config.AuthConfig{
		Mode:      "local",
		JWTSecret: "test-secret",
		JWTTTL:    time.Hour,
		Users:     map[string]string{"ada": hash},
	}
}

func TestLocalProviderLogin(t *testing.T) {
	p := NewLocalProvider(localConfig(t))

	token, err := p.Login("ada", "pw")
	require.NoError(t, err)

	id, err := p.Authenticate(context.Background(), request("Authorization", "Bearer "+token))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "ada", id.Subject)
	assert.Equal(t, "local", id.Provider)
	assert.False(t, id.ExpiresAt.IsZero())

	_, err = p.Login("ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.Login("bob", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalProviderRejects(t *testing.T) {
	cfg := localConfig(t)
	p := NewLocalProvider(cfg)
	ctx := context.Background()

	other := NewLocalProvider(config.AuthConfig{JWTSecret: "other", Users: cfg.Users})
	forged, err := other.IssueToken("ada")
	require.NoError(t, err)
	_, err = p.Authenticate(ctx, request("Authorization", "Bearer "+forged))
	assert.Error(t, err)

	unknown, err := p.IssueToken("mallory")
	require.NoError(t, err)
	_, err = p.Authenticate(ctx, request("Authorization", "Bearer "+unknown))
	assert.ErrorContains(t, err, "unknown user")

	expired := NewLocalProvider(cfg)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.IssueToken("ada")
	require.NoError(t, err)
	_, err = p.Authenticate(ctx, request("Authorization", "Bearer "+old))
	assert.Error(t, err)

	id, err := p.Authenticate(ctx, request("", ""))
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestOIDCProvider(t *testing.T) {
	var userinfoCalls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			w.Write([]byte(`{"userinfo_endpoint":"` + srv.URL + `/userinfo"}`))
		case "/userinfo":
			userinfoCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"sub":"u-1","email":"ada@example.org","preferred_username":"ada"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOIDCProvider(srv.URL+"/.well-known/openid-configuration", srv.Client())
	ctx := context.Background()

	id, err := p.Authenticate(ctx, request("Authorization", "Bearer good"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u-1", id.Subject)
	assert.Equal(t, "ada", id.DisplayName)
	assert.Equal(t, "ada@example.org", id.Email)

	_, err = p.Authenticate(ctx, request("Authorization", "Bearer good"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), userinfoCalls.Load(), "second call is served from cache")

	_, err = p.Authenticate(ctx, request("Authorization", "Bearer bad"))
	assert.ErrorContains(t, err, "401")

	id, err = p.Authenticate(ctx, request("", ""))
	assert.NoError(t, err)
	assert.Nil(t, id)
}

func TestNewChain(t *testing.T) {
	cfg := localConfig(t)
	cfg.APIKeys = []string{"key-1"}
	chain, local := NewChain(cfg, nil)
	require.NotNil(t, local)
	assert.Equal(t, []string{"apikey", "local"}, chain.ListProviders())

	token, err := local.Login("ada", "pw")
	require.NoError(t, err)
	id, err := chain.Authenticate(context.Background(), request("Authorization", "Bearer "+token))
	require.NoError(t, err)
	assert.Equal(t, "local", id.Provider)

	id, err = chain.Authenticate(context.Background(), request("Authorization", "Bearer key-1"))
	require.NoError(t, err)
	assert.Equal(t, "apikey", id.Provider)

	none, local := NewChain(config.AuthConfig{Mode: "none"}, nil)
	assert.Nil(t, local)
	assert.Empty(t, none.ListProviders())
	id, err = none.Authenticate(context.Background(), request("", ""))
	assert.NoError(t, err)
	assert.Nil(t, id)
}
