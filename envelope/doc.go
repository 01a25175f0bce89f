// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package envelope seals and opens individual ballots.

# Keys

Each election gets one RSA key pair (3072 bits by default, 2048 minimum):

	kp, err := envelope.GenerateElectionKeyPair(3072)

The public key is exported as a PKIX PEM block. Its fingerprint is the first
16 hex characters of SHA-256 over that PEM text, and is stamped on every
sealed ballot so stale or foreign keys can be rejected without decrypting.

# Sealing

EncryptVote serializes the ballot as JSON, encrypts it with a fresh
AES-256-GCM session key and a random 12-byte IV, and wraps the session key
with RSA-OAEP (SHA-256) under the election public key:

	ev, err := envelope.EncryptVote(ballot, kp.PublicKeyPEM)
	b, err := envelope.DecryptVote(*ev, kp.PrivateKey)

DecryptVote distinguishes a wrong key or damaged ciphertext
(*voteerr.DecryptionFailure) from a payload whose content hash no longer
matches (*voteerr.IntegrityViolation).

# Receipts

	code := envelope.ReceiptCode(ballot, *ev)

A receipt is 16 upper-case hex characters of
SHA-256(SHA-256(voterID) | contentHash[:16] | timestamp). It is deterministic
and carries no candidate information.

# Batches

BatchDecryptVotes opens many ballots in parallel and returns the successes
and a per-index failure list. One bad ballot never aborts the batch.
*/
package envelope
