// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

const (
	// MinKeyBits is the smallest RSA modulus accepted for election keys.
	MinKeyBits = 2048

	sessionKeyLen     = 32 // AES-256
	fingerprintLen    = 16 // hex chars
	receiptCodeLen    = 16 // hex chars
	receiptContentLen = 16 // hex chars of the content hash mixed into a receipt
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// KeyPair is a freshly generated election key pair. The private key must be
// handed straight to key custody and never persisted as is.
type KeyPair struct {
	PrivateKey   *rsa.PrivateKey
	PublicKeyPEM string
	Fingerprint  string
}

// GenerateElectionKeyPair creates an RSA key pair of the given size.
func GenerateElectionKeyPair(bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, &voteerr.EncryptionFailure{
			Op:  "generate key",
			Err: fmt.Errorf("key size %d below minimum %d", bits, MinKeyBits),
		}
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "generate key", Err: err}
	}

	pubPEM, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "export public key", Err: err}
	}

	return &KeyPair{
		PrivateKey:   priv,
		PublicKeyPEM: pubPEM,
		Fingerprint:  Fingerprint(pubPEM),
	}, nil
}

// Fingerprint returns the first 16 hex chars of SHA-256 over the exported key.
func Fingerprint(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// EncodePublicKey exports pub as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKey parses a PEM exported by EncodePublicKey.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, ErrInvalidPublicKey
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPublicKey)
	}
	return pub, nil
}

// MarshalPrivateKey returns the PKCS#8 DER encoding of priv.
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return der, nil
}

// ParsePrivateKey parses PKCS#8 DER produced by MarshalPrivateKey.
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPrivateKey)
	}
	return priv, nil
}

// SerializeBallot encodes b deterministically. Timestamps are normalized to UTC.
func SerializeBallot(b models.Ballot) ([]byte, error) {
	b.Timestamp = b.Timestamp.UTC()
	return json.Marshal(b)
}

// ContentHash is the hex SHA-256 of a serialized ballot.
func ContentHash(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// EncryptVote seals b under the election public key: a fresh AES-256-GCM
// session key encrypts the ballot and RSA-OAEP(SHA-256) wraps the session key.
func EncryptVote(b models.Ballot, publicKeyPEM string) (*models.EncryptedVote, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "parse public key", Err: err}
	}

	plaintext, err := SerializeBallot(b)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "serialize ballot", Err: err}
	}

	sessionKey := make([]byte, sessionKeyLen)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "generate session key", Err: err}
	}

	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "init cipher", Err: err}
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "generate iv", Err: err}
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
	if err != nil {
		return nil, &voteerr.EncryptionFailure{Op: "wrap session key", Err: err}
	}

	return &models.EncryptedVote{
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
		SessionKey:     base64.StdEncoding.EncodeToString(wrappedKey),
		IV:             base64.StdEncoding.EncodeToString(iv),
		ContentHash:    ContentHash(plaintext),
		KeyFingerprint: Fingerprint(publicKeyPEM),
	}, nil
}

// DecryptVote opens ev with priv. A wrong key or corrupt ciphertext yields
// *voteerr.DecryptionFailure; a payload that decrypts but does not match the
// stored content hash yields *voteerr.IntegrityViolation.
func DecryptVote(ev models.EncryptedVote, priv *rsa.PrivateKey) (*models.Ballot, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(ev.Ciphertext)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "decode ciphertext", Err: err}
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(ev.SessionKey)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "decode session key", Err: err}
	}
	iv, err := base64.StdEncoding.DecodeString(ev.IV)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "decode iv", Err: err}
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrappedKey, nil)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "unwrap session key", Err: err}
	}

	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "init cipher", Err: err}
	}
	if len(iv) != gcm.NonceSize() {
		return nil, &voteerr.DecryptionFailure{Op: "decode iv", Err: errors.New("bad iv length")}
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "open payload", Err: err}
	}

	if !hmac.Equal([]byte(ContentHash(plaintext)), []byte(strings.ToLower(ev.ContentHash))) {
		return nil, &voteerr.IntegrityViolation{}
	}

	var b models.Ballot
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "decode ballot", Err: err}
	}
	return &b, nil
}

// VerifyVoteIntegrity reports whether ev was sealed against publicKeyPEM.
// It does not decrypt anything.
func VerifyVoteIntegrity(ev models.EncryptedVote, publicKeyPEM string) bool {
	if ev.KeyFingerprint == "" {
		return false
	}
	return hmac.Equal([]byte(ev.KeyFingerprint), []byte(Fingerprint(publicKeyPEM)))
}

// HashVoterID is the one-way voter identifier mixed into receipts and audit rows.
func HashVoterID(voterID string) string {
	sum := sha256.Sum256([]byte(voterID))
	return hex.EncodeToString(sum[:])
}

// ReceiptCode derives the voter-facing proof of a sealed ballot:
// SHA-256(voterIDHash | contentHash[:16] | timestamp), first 16 hex chars, upper case.
// Collisions are treated as negligible at election scale.
func ReceiptCode(b models.Ballot, ev models.EncryptedVote) string {
	content := strings.ToLower(ev.ContentHash)
	if len(content) > receiptContentLen {
		content = content[:receiptContentLen]
	}

	h := sha256.New()
	h.Write([]byte(HashVoterID(b.VoterID)))
	h.Write([]byte{'|'})
	h.Write([]byte(content))
	h.Write([]byte{'|'})
	h.Write([]byte(b.Timestamp.UTC().Format(time.RFC3339Nano)))
	sum := h.Sum(nil)

	return strings.ToUpper(hex.EncodeToString(sum))[:receiptCodeLen]
}

// NormalizeReceiptCode upper-cases and trims user input.
func NormalizeReceiptCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
