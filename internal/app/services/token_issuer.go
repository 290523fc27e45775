package services

import (
	"strings"

	"github.com/google/uuid"
)

// TokenIssuer mints share tokens. Uniqueness is checked by the store on write;
// the issuer only has to make collisions improbable.
type TokenIssuer struct {
	generate func() string
}

// NewTokenIssuer returns an issuer backed by random UUIDs (122 bits of entropy).
func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{generate: func() string {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}}
}

// NewTokenIssuerFunc wraps a custom generator, used by tests to force collisions.
func NewTokenIssuerFunc(fn func() string) *TokenIssuer {
	if fn == nil {
		return NewTokenIssuer()
	}
	return &TokenIssuer{generate: fn}
}

// Issue returns a fresh opaque token.
func (t *TokenIssuer) Issue() string {
	return t.generate()
}
