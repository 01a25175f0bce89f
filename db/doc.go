// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and creates the schema.

# Dialects

Two backends are supported and share one DDL:

  - postgres via github.com/lib/pq
  - sqlite via modernc.org/sqlite (pure Go, used for development and tests)

	d, err := db.ParseDialect(cfg.DatabaseType)
	conn, err := db.Open(d, cfg.DatabaseURL)

SQLite connections are capped at one so concurrent writers queue inside
database/sql instead of failing with SQLITE_BUSY. Code running inside a
transaction must use the *sql.Tx only; asking the pool for a second
connection would block forever.

Dialect.ShareLock and Dialect.UpdateLock return the row-lock suffix for a
SELECT (" FOR SHARE" / " FOR UPDATE" on postgres, empty on sqlite).

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
Timestamps are always written by the application in UTC; the schema has no
NOW() defaults and queries never compare times in SQL.

# Tables

  - election: Elections and their voting windows
  - candidate: Candidates per election
  - voter_eligibility: Eligibility decisions per voter per election
  - election_key_pair: Public keys, wrapped private keys, share commitments
  - threshold_share: Digest of every custodian share
  - cast_vote: Sealed ballots; one per voter per election
  - vote_audit: Audit row committed with each cast vote
  - audit_event: Cast attempts and key custody operations

# Relationships

	election 1──* candidate
	election 1──* voter_eligibility
	election 1──* election_key_pair 1──* threshold_share
	election 1──* cast_vote 1──1 vote_audit

# Constraints

  - cast_vote.(voter_id, election_id) is unique; this is the last line of
    defense against double voting and IsUniqueViolation detects it for both
    drivers
  - election_key_pair has a partial unique index allowing at most one
    generated or active key pair per election
*/
package db
