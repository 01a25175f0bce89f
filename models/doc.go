// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain, request and response types for the API.

# Domain Types

  - Ballot: plaintext vote, only ever held in memory
  - EncryptedVote: sealed ballot (ciphertext, wrapped session key, IV,
    content hash, key fingerprint), base64 fields
  - CastVoteRecord: the stored vote; only its counted flag ever changes
  - Election, Candidate: directory entries
  - ElectionKeyPair: versioned key record; the private key is stored wrapped
  - ThresholdShare: one custodian share, handed out once

# Request Types

  - CastVoteRequest: candidate_id, polling_unit_id (the server seals it)
  - OfflineBatchRequest: justification, shares, ballots
  - MarkCountedRequest: record_ids
  - GenerateKeysRequest: activate

# Response Types

  - CastVoteResponse: receipt_code, cast_at
  - OfflineBatchResponse: processed, failed, per-ballot outcomes
  - VerifyVoteResponse: valid, election_name, cast_at
  - PublicKeyResponse, GenerateKeysResponse, KeyIntegrityResponse
  - MarkCountedResponse, ErrorResponse

# Constants

Election status:

	ElectionDraft, ElectionActive, ElectionPaused, ElectionCompleted, ElectionCancelled

Key pair status:

	KeyGenerated → KeyActive → KeyDeactivated | KeyRetired

Channels:

	ChannelWeb, ChannelOffline, ChannelUSSD
*/
package models
