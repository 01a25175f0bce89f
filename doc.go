// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the ballotbox API server.

ballotbox records votes for national elections across web, USSD and offline
polling unit channels. Every ballot is sealed with hybrid RSA-OAEP and
AES-256-GCM encryption under an election key whose private half is held by
custodians as threshold shares. Each voter can vote once per election and
gets a receipt code to verify later.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=postgres://... DATABASE_TYPE=postgres go run .

Or with flags:

	go run . -p 3318 -t sqlite -d "file:ballotbox.db"

A .env file is read when present; real environment variables win over it.

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string or SQLite DSN
  - VOTER_TOKEN_SALT (-voter-salt): Secret for voter session tokens
  - OPERATOR_KEY_SALT (-operator-salt): Secret for operator keys

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - ELECTION_KEY_BITS (-key-bits): RSA modulus size (default: 3072)
  - KEY_TOTAL_SHARES (-shares) and KEY_QUORUM (-quorum): custodian shares (default: 3 of 5)
  - BATCH_WORKERS (-batch-workers): offline batch parallelism (default: 4)

# Architecture

  - envelope: hybrid encryption and receipt codes
  - custody: election key pairs and threshold shares
  - casting: the exactly-once vote transaction and offline batches
  - verification: receipt lookups
  - directory, audit: SQL-backed collaborators
  - handlers, router, middleware: HTTP surface
  - voteerr: typed errors shared by all of the above
  - db, cliparse, auth, models: plumbing

See package documentation for each component.
*/
package main
