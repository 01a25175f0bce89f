// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voteerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups errors by who has to act on them.
type Kind int

const (
	KindInput Kind = iota + 1
	KindCrypto
	KindInfra
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindCrypto:
		return "crypto"
	case KindInfra:
		return "infra"
	}
	return "unknown"
}

// Error is implemented by every variant in this package.
type Error interface {
	error
	Kind() Kind
	Code() string
}

// KindOf returns the kind of the first voteerr variant in err's chain.
// Unclassified errors are treated as infrastructure failures.
func KindOf(err error) Kind {
	var ve Error
	if errors.As(err, &ve) {
		return ve.Kind()
	}
	return KindInfra
}

// CodeOf returns the stable code of err, or "internal" for unclassified errors.
func CodeOf(err error) string {
	var ve Error
	if errors.As(err, &ve) {
		return ve.Code()
	}
	return "internal"
}

// Input and eligibility errors

type Unauthenticated struct{}

func (e *Unauthenticated) Error() string { return "voter is not authenticated" }
func (e *Unauthenticated) Kind() Kind    { return KindInput }
func (e *Unauthenticated) Code() string  { return "unauthenticated" }

type Ineligible struct {
	Reason string
}

func (e *Ineligible) Error() string {
	if e.Reason == "" {
		return "voter is not eligible for this election"
	}
	return "voter is not eligible for this election: " + e.Reason
}
func (e *Ineligible) Kind() Kind   { return KindInput }
func (e *Ineligible) Code() string { return "ineligible" }

type ElectionNotFound struct {
	ElectionID string
}

func (e *ElectionNotFound) Error() string { return "election not found: " + e.ElectionID }
func (e *ElectionNotFound) Kind() Kind    { return KindInput }
func (e *ElectionNotFound) Code() string  { return "election_not_found" }

type ElectionNotActive struct {
	Status string
}

func (e *ElectionNotActive) Error() string { return "election is not active (status " + e.Status + ")" }
func (e *ElectionNotActive) Kind() Kind    { return KindInput }
func (e *ElectionNotActive) Code() string  { return "election_not_active" }

type OutsideVotingWindow struct {
	StartsAt time.Time
	EndsAt   time.Time
}

func (e *OutsideVotingWindow) Error() string {
	return fmt.Sprintf("voting is only open between %s and %s",
		e.StartsAt.UTC().Format(time.RFC3339), e.EndsAt.UTC().Format(time.RFC3339))
}
func (e *OutsideVotingWindow) Kind() Kind   { return KindInput }
func (e *OutsideVotingWindow) Code() string { return "outside_voting_window" }

type AlreadyVoted struct{}

func (e *AlreadyVoted) Error() string { return "voter has already voted in this election" }
func (e *AlreadyVoted) Kind() Kind    { return KindInput }
func (e *AlreadyVoted) Code() string  { return "already_voted" }

type InvalidCandidate struct {
	CandidateID string
}

func (e *InvalidCandidate) Error() string {
	return "candidate is not valid for this election: " + e.CandidateID
}
func (e *InvalidCandidate) Kind() Kind   { return KindInput }
func (e *InvalidCandidate) Code() string { return "invalid_candidate" }

type MalformedBallot struct {
	Field string
}

func (e *MalformedBallot) Error() string { return "malformed ballot: " + e.Field }
func (e *MalformedBallot) Kind() Kind    { return KindInput }
func (e *MalformedBallot) Code() string  { return "malformed_ballot" }

// Cryptographic errors

type EncryptionFailure struct {
	Op  string
	Err error
}

func (e *EncryptionFailure) Error() string { return "encryption failed (" + e.Op + "): " + e.Err.Error() }
func (e *EncryptionFailure) Unwrap() error { return e.Err }
func (e *EncryptionFailure) Kind() Kind    { return KindCrypto }
func (e *EncryptionFailure) Code() string  { return "encryption_failure" }

// DecryptionFailure means the key was wrong or the ciphertext is corrupt.
type DecryptionFailure struct {
	Op  string
	Err error
}

func (e *DecryptionFailure) Error() string { return "decryption failed (" + e.Op + "): " + e.Err.Error() }
func (e *DecryptionFailure) Unwrap() error { return e.Err }
func (e *DecryptionFailure) Kind() Kind    { return KindCrypto }
func (e *DecryptionFailure) Code() string  { return "decryption_failure" }

// IntegrityViolation means decryption succeeded but the content hash differs.
type IntegrityViolation struct{}

func (e *IntegrityViolation) Error() string { return "vote content hash mismatch" }
func (e *IntegrityViolation) Kind() Kind    { return KindCrypto }
func (e *IntegrityViolation) Code() string  { return "integrity_violation" }

type FingerprintMismatch struct {
	Expected string
	Actual   string
}

func (e *FingerprintMismatch) Error() string {
	return "vote sealed under key " + e.Actual + ", expected " + e.Expected
}
func (e *FingerprintMismatch) Kind() Kind   { return KindCrypto }
func (e *FingerprintMismatch) Code() string { return "fingerprint_mismatch" }

// KeyUnavailable means the election has no active key pair.
type KeyUnavailable struct {
	ElectionID string
}

func (e *KeyUnavailable) Error() string { return "no active key pair for election " + e.ElectionID }
func (e *KeyUnavailable) Kind() Kind    { return KindCrypto }
func (e *KeyUnavailable) Code() string  { return "key_unavailable" }

type InsufficientShares struct {
	Have int
	Need int
}

func (e *InsufficientShares) Error() string {
	return fmt.Sprintf("insufficient key shares: have %d, need %d", e.Have, e.Need)
}
func (e *InsufficientShares) Kind() Kind   { return KindCrypto }
func (e *InsufficientShares) Code() string { return "insufficient_shares" }

type InvalidShare struct {
	Index  int
	Reason string
}

func (e *InvalidShare) Error() string {
	return fmt.Sprintf("key share %d rejected: %s", e.Index, e.Reason)
}
func (e *InvalidShare) Kind() Kind   { return KindCrypto }
func (e *InvalidShare) Code() string { return "invalid_share" }

// UnknownElection is returned by key custody when no key pair was ever
// generated for the election.
type UnknownElection struct {
	ElectionID string
}

func (e *UnknownElection) Error() string { return "no key pair for election " + e.ElectionID }
func (e *UnknownElection) Kind() Kind    { return KindCrypto }
func (e *UnknownElection) Code() string  { return "unknown_election" }

type KeyStateConflict struct {
	Status string
	Want   string
}

func (e *KeyStateConflict) Error() string {
	return "key pair is " + e.Status + ", operation requires " + e.Want
}
func (e *KeyStateConflict) Kind() Kind   { return KindCrypto }
func (e *KeyStateConflict) Code() string { return "key_state_conflict" }

// Infrastructure errors

type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string { return "storage failure (" + e.Op + "): " + e.Err.Error() }
func (e *StorageFailure) Unwrap() error { return e.Err }
func (e *StorageFailure) Kind() Kind    { return KindInfra }
func (e *StorageFailure) Code() string  { return "storage_failure" }

// Storage wraps a database error as a StorageFailure.
func Storage(op string, err error) error {
	return &StorageFailure{Op: op, Err: err}
}
