// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package custody owns election key pairs.

A generated private key is wrapped under a random secret, and that secret is
Shamir-split with Feldman commitments (go.dedis.ch/kyber). The server keeps
the wrapped key, the commitments and a digest of each share; custodians keep
the shares. Any quorum of shares reconstructs the key, and every attempt is
audited with high severity.

Key pairs move through generated → active → deactivated or retired. At most
one key pair per election is live (generated or active) at a time.
*/
package custody
