// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Election status constants
const (
	ElectionDraft     = "draft"
	ElectionActive    = "active"
	ElectionPaused    = "paused"
	ElectionCompleted = "completed"
	ElectionCancelled = "cancelled"
)

// Key pair status constants
const (
	KeyGenerated   = "generated"
	KeyActive      = "active"
	KeyDeactivated = "deactivated"
	KeyRetired     = "retired"
)

// Audit severities
const (
	SeverityInfo = "info"
	SeverityHigh = "high"
)

// Channel identifies the voting surface a ballot arrived through.
type Channel string

const (
	ChannelWeb     Channel = "web"
	ChannelOffline Channel = "offline"
	ChannelUSSD    Channel = "ussd"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelOffline, ChannelUSSD:
		return true
	}
	return false
}

// Domain types

// Ballot is the plaintext vote. It only ever exists in memory.
// Field order is the serialization order and must not change.
type Ballot struct {
	VoterID       string    `json:"voter_id"`
	ElectionID    string    `json:"election_id"`
	CandidateID   string    `json:"candidate_id"`
	PollingUnitID string    `json:"polling_unit_id"`
	Timestamp     time.Time `json:"timestamp"`
	Channel       Channel   `json:"channel"`
}

// EncryptedVote is a sealed ballot. Binary fields are base64 (std encoding).
type EncryptedVote struct {
	Ciphertext     string `json:"ciphertext"`
	SessionKey     string `json:"session_key"`
	IV             string `json:"iv"`
	ContentHash    string `json:"content_hash"`
	KeyFingerprint string `json:"key_fingerprint"`
}

type Election struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Candidate struct {
	ID         string `json:"id"`
	ElectionID string `json:"election_id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}

type CastVoteRecord struct {
	ID            string        `json:"id"`
	VoterID       string        `json:"-"` // Never expose in JSON
	ElectionID    string        `json:"election_id"`
	CandidateID   string        `json:"-"` // Never expose in JSON
	PollingUnitID string        `json:"polling_unit_id"`
	Vote          EncryptedVote `json:"-"`
	Channel       Channel       `json:"channel"`
	ReceiptCode   string        `json:"receipt_code"`
	CastAt        time.Time     `json:"cast_at"`
	Counted       bool          `json:"counted"`
}

// ElectionKeyPair is one versioned key record for an election. The private
// key is held only in wrapped form; unwrapping requires a quorum of shares.
type ElectionKeyPair struct {
	ID                  string     `json:"id"`
	ElectionID          string     `json:"election_id"`
	Version             int        `json:"version"`
	PublicKeyPEM        string     `json:"public_key_pem"`
	Fingerprint         string     `json:"fingerprint"`
	KeyHash             string     `json:"-"`
	WrappedPrivateKey   string     `json:"-"`
	ShareCommitments    []string   `json:"-"`
	TotalShares         int        `json:"total_shares"`
	Quorum              int        `json:"quorum"`
	Status              string     `json:"status"`
	GeneratedBy         string     `json:"generated_by"`
	GeneratedAt         time.Time  `json:"generated_at"`
	ActivatedAt         *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt       *time.Time `json:"deactivated_at,omitempty"`
	DeactivatedBy       *string    `json:"deactivated_by,omitempty"`
	ReconstructedAt     *time.Time `json:"reconstructed_at,omitempty"`
	ReconstructionCount int        `json:"reconstruction_count"`
}

// Active reports whether the key pair may seal new ballots.
func (k *ElectionKeyPair) Active() bool {
	return k.Status == KeyActive
}

// ThresholdShare is one custodian fragment of a key-wrapping secret.
// Payload is hex; it is handed out once and never stored server-side.
type ThresholdShare struct {
	Index   int    `json:"index"`
	KeyHash string `json:"key_hash"`
	Payload string `json:"payload"`
}

// Request types

// CastVoteRequest is the web and USSD ballot body. VoterID is only read on
// operator-relayed channels; web voters are identified by their session headers.
type CastVoteRequest struct {
	VoterID       string `json:"voter_id,omitempty"`
	ElectionID    string `json:"election_id,omitempty"`
	CandidateID   string `json:"candidate_id"`
	PollingUnitID string `json:"polling_unit_id"`
}

type OfflineBallot struct {
	Vote EncryptedVote `json:"vote"`
}

type OfflineBatchRequest struct {
	Justification string           `json:"justification"`
	Shares        []ThresholdShare `json:"shares"`
	Ballots       []OfflineBallot  `json:"ballots"`
}

type MarkCountedRequest struct {
	RecordIDs []string `json:"record_ids"`
}

// GenerateKeysRequest may be omitted entirely; the key pair then stays generated.
type GenerateKeysRequest struct {
	Activate bool `json:"activate"`
}

// Response types

type CastVoteResponse struct {
	ReceiptCode string    `json:"receipt_code"`
	CastAt      time.Time `json:"cast_at"`
	Message     string    `json:"message"`
}

type BallotOutcome struct {
	Index       int    `json:"index"`
	Status      string `json:"status"` // "processed" or "failed"
	ReceiptCode string `json:"receipt_code,omitempty"`
	Code        string `json:"code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type OfflineBatchResponse struct {
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Outcomes  []BallotOutcome `json:"outcomes"`
}

type MarkCountedResponse struct {
	Marked int64 `json:"marked"`
}

type PublicKeyResponse struct {
	ElectionID   string `json:"election_id"`
	Version      int    `json:"version"`
	PublicKeyPEM string `json:"public_key_pem"`
	Fingerprint  string `json:"fingerprint"`
}

type GenerateKeysResponse struct {
	KeyPair ElectionKeyPair  `json:"key_pair"`
	Shares  []ThresholdShare `json:"shares"`
}

type KeyIntegrityResponse struct {
	ElectionID string `json:"election_id"`
	Intact     bool   `json:"intact"`
}

type VerifyVoteResponse struct {
	Valid        bool       `json:"valid"`
	ElectionName string     `json:"election_name,omitempty"`
	CastAt       *time.Time `json:"cast_at,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
