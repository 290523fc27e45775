package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
)

// PasswordGate hashes and verifies group passwords. Raw values never leave it.
type PasswordGate struct {
	cost int
}

// NewPasswordGate returns a gate using the given bcrypt cost; out-of-range values
// fall back to bcrypt.DefaultCost.
func NewPasswordGate(cost int) *PasswordGate {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordGate{cost: cost}
}

// SetPassword returns the hash to store for raw.
func (p *PasswordGate) SetPassword(raw string) (string, error) {
	if raw == "" {
		return "", ErrPasswordRequired
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), p.cost)
	if err != nil {
		// bcrypt rejects inputs longer than 72 bytes
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", validationError("password", "password is too long")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares raw against the group's stored hash. A wrong password is
// (false, nil); errors are reserved for misuse and broken hashes.
func (p *PasswordGate) Verify(g *group.Group, raw string) (bool, error) {
	if g == nil || !g.IsPasswordProtected() {
		return false, ErrNotPasswordProtected
	}
	if raw == "" {
		return false, ErrPasswordRequired
	}
	err := bcrypt.CompareHashAndPassword([]byte(g.PasswordHash), []byte(raw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// check is the join-path form of Verify: it maps a mismatch to ErrInvalidPassword
// and lets open groups through.
func (p *PasswordGate) check(g *group.Group, raw *string) error {
	if !g.IsPasswordProtected() {
		return nil
	}
	if raw == nil || *raw == "" {
		return ErrPasswordRequired
	}
	ok, err := p.Verify(g, *raw)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}
	return nil
}
