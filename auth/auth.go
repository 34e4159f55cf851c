// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidHouseKey = errors.New("invalid house key")

// NewID returns a random UUID for rows created by the service
func NewID() string {
	return uuid.NewString()
}

// GenerateHouseKey creates an HMAC-based key for a house
// This is deterministic and verifiable
func GenerateHouseKey(houseID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(houseID))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateHouseKey checks if the provided key is valid for the house
func ValidateHouseKey(houseID, houseKey, salt string) error {
	expected := GenerateHouseKey(houseID, salt)
	if !hmac.Equal([]byte(houseKey), []byte(expected)) {
		return ErrInvalidHouseKey
	}
	return nil
}

// HashVoter creates a one-way hash of a resident id for poll votes.
// The salt keeps the audit trail from being joined back to residents.
func HashVoter(residentID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(residentID))
	return hex.EncodeToString(h.Sum(nil))
}
