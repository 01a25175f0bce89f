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
)

var (
	ErrInvalidVoterToken  = errors.New("invalid voter token")
	ErrInvalidOperatorKey = errors.New("invalid operator key")
	ErrMissingIdentity    = errors.New("missing identity")
)

// sign is the HMAC-SHA256 of id under salt, URL-safe base64 without padding.
func sign(id, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(id))
	return strings.TrimRight(base64.URLEncoding.EncodeToString(h.Sum(nil)), "=")
}

// GenerateVoterToken creates the session token for a voter.
// Deterministic and verifiable, so the server stores nothing per session.
func GenerateVoterToken(voterID, salt string) string {
	return sign("voter:"+voterID, salt)
}

// ValidateVoterToken checks that the token was issued for voterID
func ValidateVoterToken(voterID, token, salt string) error {
	if voterID == "" {
		return ErrMissingIdentity
	}
	if !hmac.Equal([]byte(token), []byte(GenerateVoterToken(voterID, salt))) {
		return ErrInvalidVoterToken
	}
	return nil
}

// GenerateOperatorKey creates the API key for an election operator
func GenerateOperatorKey(operatorID, salt string) string {
	return sign("operator:"+operatorID, salt)
}

// ValidateOperatorKey checks that the key was issued for operatorID
func ValidateOperatorKey(operatorID, key, salt string) error {
	if operatorID == "" {
		return ErrMissingIdentity
	}
	if !hmac.Equal([]byte(key), []byte(GenerateOperatorKey(operatorID, salt))) {
		return ErrInvalidOperatorKey
	}
	return nil
}

// HashIP creates a one-way hash of an IP address for privacy
// Includes salt to prevent rainbow table attacks
func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// Return first 16 hex chars (64 bits) - enough for correlation in audit logs
	return hex.EncodeToString(sum[:8])
}
