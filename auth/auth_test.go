// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("NewID() = %q is not a UUID: %v", id1, err)
	}
	if id1 == id2 {
		t.Error("NewID() produced duplicate IDs (extremely unlikely)")
	}
}

func TestGenerateHouseKey(t *testing.T) {
	tests := []struct {
		name    string
		houseID string
		salt    string
	}{
		{"standard", "T0123", "secret-salt"},
		{"empty house id", "", "salt"},
		{"empty salt", "T0456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateHouseKey(tt.houseID, tt.salt)

			// Should not be empty
			if key == "" {
				t.Error("GenerateHouseKey() returned empty string")
			}

			// Should be deterministic
			if key != GenerateHouseKey(tt.houseID, tt.salt) {
				t.Error("GenerateHouseKey() is not deterministic")
			}

			// Should be URL-safe (no +, /, or =)
			if strings.ContainsAny(key, "+/=") {
				t.Errorf("GenerateHouseKey() contains non-URL-safe chars: %s", key)
			}

			if tt.houseID != "" && tt.salt != "" {
				if key == GenerateHouseKey(tt.houseID+"x", tt.salt) {
					t.Error("GenerateHouseKey() produced same key for different houses")
				}
			}
		})
	}
}

func TestValidateHouseKey(t *testing.T) {
	salt := "test-salt"
	houseID := "T0123"
	validKey := GenerateHouseKey(houseID, salt)

	tests := []struct {
		name    string
		houseID string
		key     string
		salt    string
		wantErr error
	}{
		{"valid key", houseID, validKey, salt, nil},
		{"wrong key", houseID, "wrong-key", salt, ErrInvalidHouseKey},
		{"wrong house", "T9999", validKey, salt, ErrInvalidHouseKey},
		{"wrong salt", houseID, validKey, "wrong-salt", ErrInvalidHouseKey},
		{"empty key", houseID, "", salt, ErrInvalidHouseKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHouseKey(tt.houseID, tt.key, tt.salt)
			if err != tt.wantErr {
				t.Errorf("ValidateHouseKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashVoter(t *testing.T) {
	hash := HashVoter("U123", "salt")

	if len(hash) != 64 {
		t.Errorf("HashVoter() length = %d, want 64", len(hash))
	}
	if hash != HashVoter("U123", "salt") {
		t.Error("HashVoter() is not deterministic")
	}
	if hash == HashVoter("U124", "salt") {
		t.Error("HashVoter() produced same hash for different residents")
	}
	if hash == HashVoter("U123", "other-salt") {
		t.Error("HashVoter() ignores the salt")
	}
	if strings.Contains(hash, "U123") {
		t.Error("HashVoter() leaks the resident id")
	}
}
