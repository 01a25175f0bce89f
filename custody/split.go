// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
	"golang.org/x/crypto/hkdf"

	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

const (
	keyHashLen = 16
	wrapInfo   = "ballotbox election key wrap v1"

	// MaxShares bounds the number of custodians per key.
	MaxShares = 64
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

var ErrInvalidThreshold = errors.New("quorum must be at least 2 and no larger than the share count")

// SealedKey is what the server keeps after a split: the private key wrapped
// under a secret nobody holds, plus public commitments to that secret's
// sharing polynomial.
type SealedKey struct {
	WrappedKey  string
	KeyHash     string
	Commitments []string
}

// ValidateThreshold checks a (quorum, total) pair.
func ValidateThreshold(total, quorum int) error {
	if quorum < 2 || quorum > total || total > MaxShares {
		return fmt.Errorf("%w (quorum %d, shares %d)", ErrInvalidThreshold, quorum, total)
	}
	return nil
}

// KeyHash is the hex SHA-256 prefix of a PKCS#8 private key. Every share of
// that key carries it so mixed-up shares are caught before interpolation.
func KeyHash(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])[:keyHashLen]
}

// ShareDigest is the server-side fingerprint of one custodian share.
func ShareDigest(s models.ThresholdShare) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s", s.Index, s.KeyHash, s.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SplitPrivateKey wraps priv with AES-256-GCM under a key derived from a
// random scalar, then Shamir-splits that scalar into total shares of which
// any quorum recover it. Fewer than quorum shares reveal nothing about the
// scalar, and so nothing about priv. salt binds the wrap to one key record.
func SplitPrivateKey(priv *rsa.PrivateKey, total, quorum int, salt string) (*SealedKey, []models.ThresholdShare, error) {
	if err := ValidateThreshold(total, quorum); err != nil {
		return nil, nil, err
	}

	der, err := envelope.MarshalPrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}

	secret := suite.Scalar().Pick(suite.RandomStream())
	kek, err := deriveWrapKey(secret, salt)
	if err != nil {
		return nil, nil, err
	}

	wrapped, err := seal(kek, der)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap private key: %w", err)
	}

	poly := share.NewPriPoly(suite, quorum, secret, suite.RandomStream())
	_, commits := poly.Commit(nil).Info()

	sealed := &SealedKey{
		WrappedKey:  base64.StdEncoding.EncodeToString(wrapped),
		KeyHash:     KeyHash(der),
		Commitments: make([]string, len(commits)),
	}
	for i, c := range commits {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode commitment: %w", err)
		}
		sealed.Commitments[i] = hex.EncodeToString(b)
	}

	priShares := poly.Shares(total)
	shares := make([]models.ThresholdShare, len(priShares))
	for i, ps := range priShares {
		b, err := ps.V.MarshalBinary()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode share: %w", err)
		}
		shares[i] = models.ThresholdShare{
			Index:   ps.I + 1,
			KeyHash: sealed.KeyHash,
			Payload: hex.EncodeToString(b),
		}
	}

	return sealed, shares, nil
}

// RecoverPrivateKey checks every supplied share against the commitments and
// interpolates the wrapping secret from them. Duplicate indexes count once.
func RecoverPrivateKey(sealed SealedKey, shares []models.ThresholdShare, total, quorum int, salt string) (*rsa.PrivateKey, error) {
	unique := dedupe(shares)
	if len(unique) < quorum {
		return nil, &voteerr.InsufficientShares{Have: len(unique), Need: quorum}
	}

	pub, err := decodeCommitments(sealed.Commitments)
	if err != nil {
		return nil, err
	}

	priShares := make([]*share.PriShare, 0, len(unique))
	for _, s := range unique {
		ps, err := decodeShare(s, sealed.KeyHash, total)
		if err != nil {
			return nil, err
		}
		if !pub.Check(ps) {
			return nil, &voteerr.InvalidShare{Index: s.Index, Reason: "failed commitment check"}
		}
		priShares = append(priShares, ps)
	}

	secret, err := share.RecoverSecret(suite, priShares, quorum, total)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "interpolate shares", Err: err}
	}

	kek, err := deriveWrapKey(secret, salt)
	if err != nil {
		return nil, err
	}

	wrapped, err := base64.StdEncoding.DecodeString(sealed.WrappedKey)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "decode wrapped key", Err: err}
	}

	der, err := open(kek, wrapped)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "unwrap private key", Err: err}
	}
	if KeyHash(der) != sealed.KeyHash {
		return nil, &voteerr.IntegrityViolation{}
	}

	priv, err := envelope.ParsePrivateKey(der)
	if err != nil {
		return nil, &voteerr.DecryptionFailure{Op: "parse private key", Err: err}
	}
	return priv, nil
}

func dedupe(shares []models.ThresholdShare) []models.ThresholdShare {
	seen := make(map[int]bool, len(shares))
	out := make([]models.ThresholdShare, 0, len(shares))
	for _, s := range shares {
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		out = append(out, s)
	}
	return out
}

func decodeShare(s models.ThresholdShare, keyHash string, total int) (*share.PriShare, error) {
	if s.Index < 1 || s.Index > total {
		return nil, &voteerr.InvalidShare{Index: s.Index, Reason: "index out of range"}
	}
	if s.KeyHash != keyHash {
		return nil, &voteerr.InvalidShare{Index: s.Index, Reason: "belongs to a different key"}
	}

	b, err := hex.DecodeString(s.Payload)
	if err != nil {
		return nil, &voteerr.InvalidShare{Index: s.Index, Reason: "malformed payload"}
	}
	v := suite.Scalar()
	if err := v.UnmarshalBinary(b); err != nil {
		return nil, &voteerr.InvalidShare{Index: s.Index, Reason: "malformed payload"}
	}

	return &share.PriShare{I: s.Index - 1, V: v}, nil
}

func decodeCommitments(encoded []string) (*share.PubPoly, error) {
	commits := make([]kyber.Point, len(encoded))
	for i, c := range encoded {
		b, err := hex.DecodeString(c)
		if err != nil {
			return nil, fmt.Errorf("corrupt share commitment %d: %w", i, err)
		}
		p := suite.Point()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("corrupt share commitment %d: %w", i, err)
		}
		commits[i] = p
	}
	return share.NewPubPoly(suite, nil, commits), nil
}

func deriveWrapKey(secret kyber.Scalar, salt string) ([]byte, error) {
	ikm, err := secret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode wrapping secret: %w", err)
	}

	kek := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, []byte(salt), []byte(wrapInfo)), kek); err != nil {
		return nil, fmt.Errorf("failed to derive wrapping key: %w", err)
	}
	return kek, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("wrapped key too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
