package services

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
)

func TestPasswordGate(t *testing.T) {
	gate := NewPasswordGate(bcrypt.MinCost)

	if _, err := gate.SetPassword(""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := gate.SetPassword(strings.Repeat("x", 80)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for over-long password, got %v", err)
	}

	hash, err := gate.SetPassword("hunter2")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if hash == "hunter2" || hash == "" {
		t.Fatalf("expected a hash, got %q", hash)
	}

	protected := &group.Group{AccessType: group.AccessPassword, PasswordHash: hash}
	tests := []struct {
		name    string
		g       *group.Group
		raw     string
		want    bool
		wantErr error
	}{
		{name: "match", g: protected, raw: "hunter2", want: true},
		{name: "mismatch", g: protected, raw: "hunter3", want: false},
		{name: "empty", g: protected, raw: "", wantErr: ErrPasswordRequired},
		{name: "open group", g: &group.Group{AccessType: group.AccessOpen}, raw: "x", wantErr: ErrNotPasswordProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gate.Verify(tt.g, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Verify() = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestNewPasswordGateClampsCost(t *testing.T) {
	if g := NewPasswordGate(0); g.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", g.cost)
	}
	if g := NewPasswordGate(bcrypt.MaxCost + 1); g.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", g.cost)
	}
}

func TestErrorKinds(t *testing.T) {
	wrapped := validationError("name", "name is required")
	if !errors.Is(wrapped, ErrValidation) || KindOf(wrapped) != KindValidation || CodeOf(wrapped) != CodeValidation {
		t.Fatalf("validation error should match its sentinel")
	}
	if errors.Is(ErrGroupClosed, ErrInvalidPassword) {
		t.Fatalf("distinct codes must not match")
	}
	if KindOf(errors.New("boom")) != "" {
		t.Fatalf("infrastructure errors carry no kind")
	}
}
