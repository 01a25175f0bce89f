// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the ballotbox API.

# Handler Types

Each handler is a struct over the service it exposes plus the config:

  - VoteHandler: web, USSD and offline batch casting, tally marking
  - KeyHandler: election key lifecycle and public key publication
  - ReceiptHandler: receipt verification

Handlers are created via constructor functions:

	voteHandler := handlers.NewVoteHandler(votes, cfg)

# Authentication

Web voters send X-Voter-ID and X-Voter-Token. A missing or wrong token is
still passed to the casting service as unauthenticated, so the attempt is
audited before the 401 is returned.

Operators (USSD gateways, polling unit uploaders, custodians, tally staff)
send X-Operator-ID and X-Operator-Key. Operator checks happen in the handler.

# Voting Flow

	POST /elections/{id}/votes           → CastWeb (returns receipt_code)
	POST /ussd/votes                     → CastUSSD (voter_id in body)
	POST /elections/{id}/offline-batches → SubmitOfflineBatch (per-ballot outcomes)
	GET  /receipts/{code}                → Verify

# Key Custody

	POST /elections/{id}/keys            → Generate (shares returned once)
	POST /elections/{id}/keys/activate   → Activate
	POST /elections/{id}/keys/deactivate → Deactivate
	POST /elections/{id}/keys/retire     → Retire
	GET  /elections/{id}/public-key      → PublicKey

Domain errors are written with middleware.WriteError.
*/
package handlers
