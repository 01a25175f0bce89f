// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package custody

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"

	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func splitTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func TestValidateThreshold(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		quorum  int
		wantErr bool
	}{
		{"3 of 5", 5, 3, false},
		{"2 of 2", 2, 2, false},
		{"quorum of one", 5, 1, true},
		{"quorum above total", 3, 4, true},
		{"too many shares", MaxShares + 1, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThreshold(tt.total, tt.quorum)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateThreshold(%d, %d) error = %v, wantErr %v", tt.total, tt.quorum, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidThreshold) {
				t.Errorf("expected ErrInvalidThreshold, got %v", err)
			}
		})
	}
}

func TestSplitAndRecover(t *testing.T) {
	priv := splitTestKey(t)

	sealed, shares, err := SplitPrivateKey(priv, 5, 3, "kp-1")
	if err != nil {
		t.Fatalf("SplitPrivateKey() error = %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 shares, got %d", len(shares))
	}
	if len(sealed.Commitments) != 3 {
		t.Errorf("expected 3 commitments, got %d", len(sealed.Commitments))
	}
	for i, s := range shares {
		if s.Index != i+1 {
			t.Errorf("share %d has index %d", i, s.Index)
		}
		if s.KeyHash != sealed.KeyHash {
			t.Errorf("share %d key hash = %s, want %s", i, s.KeyHash, sealed.KeyHash)
		}
	}

	subsets := map[string][]models.ThresholdShare{
		"first three":    shares[:3],
		"last three":     shares[2:],
		"scattered":      {shares[0], shares[2], shares[4]},
		"all five":       shares,
		"with duplicate": {shares[1], shares[1], shares[3], shares[4]},
	}

	for name, subset := range subsets {
		t.Run(name, func(t *testing.T) {
			got, err := RecoverPrivateKey(*sealed, subset, 5, 3, "kp-1")
			if err != nil {
				t.Fatalf("RecoverPrivateKey() error = %v", err)
			}
			if !got.Equal(priv) {
				t.Error("recovered key differs from original")
			}
		})
	}
}

func TestRecover_BelowQuorum(t *testing.T) {
	priv := splitTestKey(t)
	sealed, shares, err := SplitPrivateKey(priv, 5, 3, "kp-1")
	if err != nil {
		t.Fatal(err)
	}

	// Duplicates do not count toward the quorum
	_, err = RecoverPrivateKey(*sealed, []models.ThresholdShare{shares[0], shares[1], shares[1]}, 5, 3, "kp-1")

	var insufficient *voteerr.InsufficientShares
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientShares, got %v", err)
	}
	if insufficient.Have != 2 || insufficient.Need != 3 {
		t.Errorf("got have=%d need=%d, want 2 and 3", insufficient.Have, insufficient.Need)
	}
}

func TestRecover_TamperedShare(t *testing.T) {
	priv := splitTestKey(t)
	sealed, shares, err := SplitPrivateKey(priv, 5, 3, "kp-1")
	if err != nil {
		t.Fatal(err)
	}

	// A valid payload moved to another index fails the commitment check
	forged := shares[1]
	forged.Payload = shares[0].Payload

	_, err = RecoverPrivateKey(*sealed, []models.ThresholdShare{shares[0], forged, shares[2]}, 5, 3, "kp-1")

	var invalid *voteerr.InvalidShare
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidShare, got %v", err)
	}
	if invalid.Index != 2 {
		t.Errorf("expected share 2 to be blamed, got %d", invalid.Index)
	}
}

func TestRecover_RejectsBadShares(t *testing.T) {
	priv := splitTestKey(t)
	sealed, shares, err := SplitPrivateKey(priv, 5, 3, "kp-1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*models.ThresholdShare)
	}{
		{"wrong key hash", func(s *models.ThresholdShare) { s.KeyHash = "0000000000000000" }},
		{"index out of range", func(s *models.ThresholdShare) { s.Index = 9 }},
		{"malformed payload", func(s *models.ThresholdShare) { s.Payload = "zz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := shares[2]
			tt.mutate(&bad)

			_, err := RecoverPrivateKey(*sealed, []models.ThresholdShare{shares[0], shares[1], bad}, 5, 3, "kp-1")
			var invalid *voteerr.InvalidShare
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidShare, got %v", err)
			}
		})
	}
}

func TestRecover_WrongSalt(t *testing.T) {
	priv := splitTestKey(t)
	sealed, shares, err := SplitPrivateKey(priv, 3, 2, "kp-1")
	if err != nil {
		t.Fatal(err)
	}

	// Shares are fine, but the wrap was bound to a different key record
	_, err = RecoverPrivateKey(*sealed, shares[:2], 3, 2, "kp-2")

	var df *voteerr.DecryptionFailure
	if !errors.As(err, &df) {
		t.Fatalf("expected DecryptionFailure, got %v", err)
	}
}

func TestSplit_FreshSecretEachTime(t *testing.T) {
	priv := splitTestKey(t)

	a, sharesA, err := SplitPrivateKey(priv, 3, 2, "kp-1")
	if err != nil {
		t.Fatal(err)
	}
	b, sharesB, err := SplitPrivateKey(priv, 3, 2, "kp-1")
	if err != nil {
		t.Fatal(err)
	}

	if a.WrappedKey == b.WrappedKey {
		t.Error("two splits produced the same wrapped key")
	}
	if sharesA[0].Payload == sharesB[0].Payload {
		t.Error("two splits produced the same share")
	}
	if a.KeyHash != b.KeyHash {
		t.Error("key hash should depend only on the private key")
	}
}
