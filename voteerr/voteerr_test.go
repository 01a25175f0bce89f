// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voteerr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestKindAndCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"unauthenticated", &Unauthenticated{}, KindInput, "unauthenticated"},
		{"ineligible", &Ineligible{Reason: "suspended"}, KindInput, "ineligible"},
		{"already voted", &AlreadyVoted{}, KindInput, "already_voted"},
		{"outside window", &OutsideVotingWindow{}, KindInput, "outside_voting_window"},
		{"integrity", &IntegrityViolation{}, KindCrypto, "integrity_violation"},
		{"decryption", &DecryptionFailure{Op: "open", Err: errors.New("bad tag")}, KindCrypto, "decryption_failure"},
		{"shares", &InsufficientShares{Have: 2, Need: 3}, KindCrypto, "insufficient_shares"},
		{"storage", Storage("insert", sql.ErrConnDone), KindInfra, "storage_failure"},
		{"unclassified", errors.New("boom"), KindInfra, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf() = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestWrappedVariantsAreFound(t *testing.T) {
	err := fmt.Errorf("cast vote: %w", &AlreadyVoted{})

	if CodeOf(err) != "already_voted" {
		t.Errorf("CodeOf() = %q, want already_voted", CodeOf(err))
	}

	var av *AlreadyVoted
	if !errors.As(err, &av) {
		t.Error("errors.As should find AlreadyVoted through wrapping")
	}
}

func TestStorageUnwraps(t *testing.T) {
	err := Storage("query election", sql.ErrConnDone)

	if !errors.Is(err, sql.ErrConnDone) {
		t.Error("StorageFailure should unwrap to the driver error")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{KindInput: "input", KindCrypto: "crypto", KindInfra: "infra", Kind(0): "unknown"} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}

func TestIneligibleMessage(t *testing.T) {
	if got := (&Ineligible{}).Error(); got != "voter is not eligible for this election" {
		t.Errorf("unexpected message %q", got)
	}
	if got := (&Ineligible{Reason: "suspended"}).Error(); got != "voter is not eligible for this election: suspended" {
		t.Errorf("unexpected message %q", got)
	}
}
