// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the ballotbox API.

# Route Registration

NewRouter wires the audit recorder, directory, key custody, casting and
verification services onto one database connection and returns a configured
http.ServeMux:

	mux := router.NewRouter(conn, db.Postgres, cfg)

# Endpoints

Health:

	GET /health

Voting (web voters use X-Voter-ID and X-Voter-Token):

	POST /elections/{id}/votes           - Cast a web ballot
	POST /ussd/votes                     - Cast a ballot relayed by the USSD gateway
	POST /elections/{id}/offline-batches - Cast polling unit ballots with custodian shares
	POST /elections/{id}/votes/counted   - Mark recorded votes as counted

Receipts (public):

	GET /receipts/{code} - Verify a receipt code

Key custody (operator, requires X-Operator-ID and X-Operator-Key):

	GET  /elections/{id}/public-key      - Active public key (public)
	GET  /elections/{id}/keys            - Key pair history
	POST /elections/{id}/keys            - Generate a key pair and custodian shares
	POST /elections/{id}/keys/activate   - Start sealing ballots with it
	POST /elections/{id}/keys/deactivate - Take it out of service
	POST /elections/{id}/keys/retire     - Close it out after reconstruction
	GET  /elections/{id}/keys/integrity  - Recheck the stored fingerprint
*/
package router
