// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package custody

import (
	"context"
	"crypto/hmac"
	"crypto/rsa"
	"log/slog"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

// ReconstructPrivateKey rebuilds an election's private key from custodian
// shares. The target key pair is the one the shares were cut from, falling
// back to the newest. Preconditions are checked in order: the election has
// keys, the key is not retired, enough distinct shares were supplied, every
// share is on file, every share passes its commitment check. Every attempt
// is audited at high severity.
func (s *Service) ReconstructPrivateKey(ctx context.Context, electionID string, shares []models.ThresholdShare, req Requester) (*rsa.PrivateKey, *models.ElectionKeyPair, error) {
	s.reconstructMu.Lock()
	defer s.reconstructMu.Unlock()

	slog.Warn("private key reconstruction requested",
		"severity", models.SeverityHigh,
		"election_id", electionID,
		"operator_id", req.OperatorID,
		"share_count", len(shares),
	)

	priv, kp, err := s.reconstruct(ctx, electionID, shares)

	e := audit.Event{
		Action:     audit.ActionKeyReconstruct,
		Severity:   models.SeverityHigh,
		ElectionID: electionID,
		Actor:      req.OperatorID,
		Outcome:    audit.OutcomeSuccess,
		Detail: map[string]any{
			"justification": req.Justification,
			"share_count":   len(shares),
		},
	}
	if kp != nil {
		e.Detail["key_pair_id"] = kp.ID
		e.Detail["fingerprint"] = kp.Fingerprint
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
		slog.Warn("private key reconstruction failed",
			"severity", models.SeverityHigh,
			"election_id", electionID,
			"operator_id", req.OperatorID,
			"code", e.Code,
		)
	} else {
		slog.Warn("private key reconstructed",
			"severity", models.SeverityHigh,
			"election_id", electionID,
			"operator_id", req.OperatorID,
			"key_pair_id", kp.ID,
		)
	}
	s.audit.Emit(ctx, e)

	if err != nil {
		return nil, kp, err
	}
	return priv, kp, nil
}

func (s *Service) reconstruct(ctx context.Context, electionID string, shares []models.ThresholdShare) (*rsa.PrivateKey, *models.ElectionKeyPair, error) {
	pairs, err := s.KeyPairs(ctx, electionID)
	if err != nil {
		return nil, nil, err
	}
	if len(pairs) == 0 {
		return nil, nil, &voteerr.UnknownElection{ElectionID: electionID}
	}

	kp := pairs[0]
	if len(shares) > 0 {
		for _, p := range pairs {
			if p.KeyHash == shares[0].KeyHash {
				kp = p
				break
			}
		}
	}

	if kp.Status == models.KeyRetired {
		return nil, kp, &voteerr.KeyStateConflict{Status: kp.Status, Want: "an unretired key pair"}
	}

	unique := dedupe(shares)
	if len(unique) < kp.Quorum {
		return nil, kp, &voteerr.InsufficientShares{Have: len(unique), Need: kp.Quorum}
	}

	digests, err := s.shareDigests(ctx, kp.ID)
	if err != nil {
		return nil, kp, err
	}
	for _, sh := range unique {
		stored, ok := digests[sh.Index]
		if !ok || !hmac.Equal([]byte(stored), []byte(ShareDigest(sh))) {
			return nil, kp, &voteerr.InvalidShare{Index: sh.Index, Reason: "does not match any share on file"}
		}
	}

	sealed := SealedKey{
		WrappedKey:  kp.WrappedPrivateKey,
		KeyHash:     kp.KeyHash,
		Commitments: kp.ShareCommitments,
	}
	priv, err := RecoverPrivateKey(sealed, unique, kp.TotalShares, kp.Quorum, kp.ID)
	if err != nil {
		return nil, kp, err
	}

	pubPEM, err := envelope.EncodePublicKey(&priv.PublicKey)
	if err != nil || envelope.Fingerprint(pubPEM) != kp.Fingerprint {
		return nil, kp, &voteerr.FingerprintMismatch{Expected: kp.Fingerprint, Actual: envelope.Fingerprint(pubPEM)}
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE election_key_pair
		SET reconstructed_at = $1, reconstruction_count = reconstruction_count + 1
		WHERE id = $2
	`, now, kp.ID)
	if err != nil {
		return nil, kp, voteerr.Storage("record reconstruction", err)
	}
	kp.ReconstructedAt = &now
	kp.ReconstructionCount++

	return priv, kp, nil
}

func (s *Service) shareDigests(ctx context.Context, keyPairID string) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT share_index, payload_digest FROM threshold_share WHERE key_pair_id = $1
	`, keyPairID)
	if err != nil {
		return nil, voteerr.Storage("query shares", err)
	}
	defer rows.Close()

	digests := make(map[int]string)
	for rows.Next() {
		var idx int
		var digest string
		if err := rows.Scan(&idx, &digest); err != nil {
			return nil, voteerr.Storage("scan share", err)
		}
		digests[idx] = digest
	}
	if err := rows.Err(); err != nil {
		return nil, voteerr.Storage("query shares", err)
	}
	return digests, nil
}
