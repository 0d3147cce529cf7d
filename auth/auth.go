// Package auth provides Authenticate hooks for rpc.ServerPlugin, mirroring
// kite.go's AuthenticateFromToken/AuthenticateFromKiteKey pair: one
// verifies a bearer token, the other is an explicit opt-in to
// unauthenticated traffic.
package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/koding/cache"

	rpc "github.com/doxysoft/jsonrpc-bidirectional"
)

// AllowAll is an explicit "accept everyone" authenticate hook. Because
// rpc.Server rejects every request when no plugin implements Authenticate
// (spec.md §4.B's default-deny), installing AllowAll is how an operator
// opts in to unauthenticated traffic -- it is never the implicit default.
func AllowAll() rpc.ServerPlugin {
	return rpc.ServerPlugin{
		Name: "allow-all",
		Authenticate: func(r *rpc.IncomingRequest) *rpc.Error {
			r.Identity = "anonymous"
			return nil
		},
	}
}

// TokenFunc extracts the bearer token from an incoming request. Callers
// typically read it from the first positional param or a named "token"
// field, whichever convention their endpoint uses.
type TokenFunc func(r *rpc.IncomingRequest) (string, error)

// JWTAuthenticator verifies a bearer token against Key and caches
// successful verifications for a bounded time, grounded on
// Kite.verifyCache/AuthenticateFromToken: a repeated call presenting the
// same still-valid token skips re-verifying the signature.
type JWTAuthenticator struct {
	Key      *rsa.PublicKey
	Audience string
	Token    TokenFunc

	cache cache.Cache
}

// NewJWTAuthenticator builds a JWTAuthenticator that verifies tokens
// against key, caching successful verifications for ttl.
func NewJWTAuthenticator(key *rsa.PublicKey, token TokenFunc, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{
		Key:   key,
		Token: token,
		cache: cache.NewMemoryWithTTL(ttl),
	}
}

// Plugin returns the ServerPlugin a Server should AddPlugin.
func (a *JWTAuthenticator) Plugin() rpc.ServerPlugin {
	return rpc.ServerPlugin{Name: "jwt-auth", Authenticate: a.authenticate}
}

func (a *JWTAuthenticator) authenticate(r *rpc.IncomingRequest) *rpc.Error {
	tok, err := a.Token(r)
	if err != nil {
		return rpc.AuthenticationError(err.Error())
	}

	if subject, err := a.cache.Get(tok); err == nil {
		r.Identity = subject
		return nil
	}

	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return a.Key, nil
	})
	if err != nil || !parsed.Valid {
		return rpc.AuthenticationError("invalid or expired token")
	}
	if a.Audience != "" && claims.Audience != a.Audience {
		return rpc.AuthenticationError(fmt.Sprintf("unexpected audience: %s", claims.Audience))
	}

	_ = a.cache.Set(tok, claims.Subject)
	r.Identity = claims.Subject
	return nil
}
