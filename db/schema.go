// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is shared between postgres and sqlite.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Elections (maintained by the election administration service)
CREATE TABLE IF NOT EXISTS election (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'paused', 'completed', 'cancelled')),
    starts_at TIMESTAMP NOT NULL,
    ends_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_election_status ON election(status);

-- Candidates
CREATE TABLE IF NOT EXISTS candidate (
    id TEXT PRIMARY KEY,
    election_id TEXT NOT NULL REFERENCES election(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_candidate_election_id ON candidate(election_id);

-- Eligibility decisions (maintained by voter verification)
CREATE TABLE IF NOT EXISTS voter_eligibility (
    voter_id TEXT NOT NULL,
    election_id TEXT NOT NULL REFERENCES election(id) ON DELETE CASCADE,
    eligible BOOLEAN NOT NULL,
    reason TEXT,
    PRIMARY KEY (voter_id, election_id)
);

-- Election key pairs; at most one live (generated or active) per election
CREATE TABLE IF NOT EXISTS election_key_pair (
    id TEXT PRIMARY KEY,
    election_id TEXT NOT NULL REFERENCES election(id),
    version INTEGER NOT NULL,
    public_key_pem TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    key_hash TEXT NOT NULL,
    wrapped_private_key TEXT NOT NULL,
    share_commitments TEXT NOT NULL,
    total_shares INTEGER NOT NULL,
    quorum INTEGER NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('generated', 'active', 'deactivated', 'retired')),
    generated_by TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    activated_at TIMESTAMP,
    deactivated_at TIMESTAMP,
    deactivated_by TEXT,
    reconstructed_at TIMESTAMP,
    reconstruction_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE (election_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_election_key_pair_live
    ON election_key_pair(election_id) WHERE status IN ('generated', 'active');

-- Share digests; payloads are held by custodians only
CREATE TABLE IF NOT EXISTS threshold_share (
    key_pair_id TEXT NOT NULL REFERENCES election_key_pair(id),
    share_index INTEGER NOT NULL,
    key_hash TEXT NOT NULL,
    payload_digest TEXT NOT NULL,
    PRIMARY KEY (key_pair_id, share_index)
);

-- Cast votes; one per voter per election
CREATE TABLE IF NOT EXISTS cast_vote (
    id TEXT PRIMARY KEY,
    voter_id TEXT NOT NULL,
    election_id TEXT NOT NULL REFERENCES election(id),
    candidate_id TEXT NOT NULL REFERENCES candidate(id),
    polling_unit_id TEXT NOT NULL,
    channel TEXT NOT NULL CHECK (channel IN ('web', 'offline', 'ussd')),
    encrypted_payload TEXT NOT NULL,
    session_key TEXT NOT NULL,
    iv TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    key_fingerprint TEXT NOT NULL,
    receipt_code TEXT NOT NULL,
    cast_at TIMESTAMP NOT NULL,
    counted BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (voter_id, election_id)
);

CREATE INDEX IF NOT EXISTS idx_cast_vote_election_id ON cast_vote(election_id);
CREATE INDEX IF NOT EXISTS idx_cast_vote_receipt_code ON cast_vote(receipt_code);

-- Audit entry committed together with each cast vote
CREATE TABLE IF NOT EXISTS vote_audit (
    id TEXT PRIMARY KEY,
    cast_vote_id TEXT NOT NULL REFERENCES cast_vote(id),
    election_id TEXT NOT NULL,
    voter_hash TEXT NOT NULL,
    channel TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vote_audit_election_id ON vote_audit(election_id);

-- Audit events (cast attempts, key custody operations)
CREATE TABLE IF NOT EXISTS audit_event (
    id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    severity TEXT NOT NULL,
    election_id TEXT,
    actor TEXT,
    outcome TEXT NOT NULL,
    code TEXT,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_event_election_id ON audit_event(election_id);
CREATE INDEX IF NOT EXISTS idx_audit_event_action ON audit_event(action);
`
