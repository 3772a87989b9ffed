package security_test

import (
	"strings"
	"testing"

	"github.com/Rrens/event-chat/internal/security"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	hasher := security.NewPasswordHasher(bcrypt.DefaultCost)

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	if hash == "correct horse" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := hasher.Compare(hash, "correct horse"); err != nil {
		t.Errorf("expected password to match, got %v", err)
	}

	if err := hasher.Compare(hash, "wrong horse"); err != security.ErrPasswordMismatch {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestPasswordHasher_MinimumCost(t *testing.T) {
	hasher := security.NewPasswordHasher(4)

	hash, err := hasher.Hash("pw")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("failed to read cost: %v", err)
	}
	if cost < bcrypt.DefaultCost {
		t.Errorf("cost = %d, want at least %d", cost, bcrypt.DefaultCost)
	}
}

func TestSitePassword_Matches(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		password string
		want     bool
	}{
		{"exact match", "event2026", "event2026", true},
		{"wrong password", "event2026", "event2025", false},
		{"prefix only", "event2026", "event", false},
		{"case sensitive", "event2026", "EVENT2026", false},
		{"empty secret never matches", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := security.NewSitePassword(tt.secret).Matches(tt.password)
			if got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestNewSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := security.NewSessionToken()
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		if len(token) != 64 {
			t.Fatalf("token length = %d, want 64", len(token))
		}
		if strings.Trim(token, "0123456789abcdef") != "" {
			t.Fatalf("token %q is not lowercase hex", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

func TestNewResetToken(t *testing.T) {
	a := security.NewResetToken()
	b := security.NewResetToken()
	if a == b {
		t.Error("reset tokens must be unique")
	}
	if len(a) != 36 {
		t.Errorf("reset token length = %d, want 36", len(a))
	}
}
