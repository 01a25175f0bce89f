// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Precedence

CLI flags win over environment variables. Environment variables win over a
.env file (-env-file, default ".env"), which is skipped when missing.
Defaults apply last.

# CLI Flags and Environment Variables

	-p              PORT               Server port (3318)
	-d              DATABASE_URL       Database URL (required)
	-t              DATABASE_TYPE      sqlite or postgres (sqlite)
	-voter-salt     VOTER_TOKEN_SALT   Voter token salt (required)
	-operator-salt  OPERATOR_KEY_SALT  Operator key salt (required)
	-key-bits       ELECTION_KEY_BITS  RSA modulus (3072)
	-shares         KEY_TOTAL_SHARES   Custodian shares per key (5)
	-quorum         KEY_QUORUM         Shares needed to reconstruct (3)
	-batch-workers  BATCH_WORKERS      Offline batch workers (4)

# Validation

ParseFlags returns an error when:

  - DATABASE_URL, VOTER_TOKEN_SALT or OPERATOR_KEY_SALT is missing
  - the key size is below 2048 bits
  - the quorum is below 2 or above the share count
  - fewer than one batch worker is configured
*/
package cliparse
