package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/adaptation-atlas/atlas-assistant/pkg/contracts"
	pkgmw "github.com/adaptation-atlas/atlas-assistant/pkg/middleware"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// publicPaths never consult the provider chain. /token is public because it
// is how local users obtain a credential in the first place.
var publicPaths = map[string]struct{}{
	"/health":  {},
	"/version": {},
	"/token":   {},
	"/metrics": {},
}

// AuthMiddleware resolves the caller through the provider chain and stores
// the Identity in the request context. A nil Identity means anonymous.
type AuthMiddleware struct {
	chain       contracts.AuthProviderChain
	requireAuth bool
}

// NewAuthMiddleware creates the auth middleware. With requireAuth set,
// anonymous requests to non-public paths get 401.
func NewAuthMiddleware(chain contracts.AuthProviderChain, requireAuth bool) *AuthMiddleware {
	return &AuthMiddleware{chain: chain, requireAuth: requireAuth}
}

func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := am.chain.Authenticate(r.Context(), r)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Credentials rejected")
			unauthorized(w, "Could not validate credentials")
			return
		case identity == nil && am.requireAuth:
			unauthorized(w, "Not authenticated")
			return
		}

		ctx := pkgmw.SetIdentity(r.Context(), identity)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("atlas.subject", pkgmw.Subject(ctx)),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
