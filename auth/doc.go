// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides credential validation for voters and operators.

# Voter Tokens

Voter session tokens are HMAC-SHA256 over the voter id:

	token := auth.GenerateVoterToken(voterID, salt)
	err := auth.ValidateVoterToken(voterID, token, salt)

The token is URL-safe base64 encoded without padding. Since it's
deterministic, validation needs no stored session state.

# Operator Keys

Operators (USSD gateways, polling unit uploaders, key custodians) use the
same scheme under a separate salt and domain prefix, so a voter token is
never a valid operator key:

	key := auth.GenerateOperatorKey(operatorID, salt)
	err := auth.ValidateOperatorKey(operatorID, key, salt)

# IP Hashing

Client addresses are hashed before they reach the audit trail:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
