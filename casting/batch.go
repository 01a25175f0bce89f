// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package casting

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
	"golang.org/x/sync/errgroup"
)

const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
)

// OfflineBatch is a set of ballots sealed at a polling unit, delivered
// together with enough custodian shares to open them.
type OfflineBatch struct {
	ElectionID string
	Operator   custody.Requester
	Shares     []models.ThresholdShare
	Ballots    []models.EncryptedVote
}

// CastOfflineBatch reconstructs the election key, opens every ballot and
// casts each one through the single-vote path. A batch-level error means
// nothing was decrypted; otherwise every ballot gets its own outcome.
func (s *Service) CastOfflineBatch(ctx context.Context, batch OfflineBatch) (*models.OfflineBatchResponse, error) {
	resp, err := s.castOfflineBatch(ctx, batch)

	e := audit.Event{
		Action:     audit.ActionOfflineBatch,
		ElectionID: batch.ElectionID,
		Actor:      batch.Operator.OperatorID,
		Outcome:    audit.OutcomeSuccess,
		Detail: map[string]any{
			"ballots":       len(batch.Ballots),
			"share_count":   len(batch.Shares),
			"justification": batch.Operator.Justification,
		},
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
	} else {
		e.Detail["processed"] = resp.Processed
		e.Detail["failed"] = resp.Failed
	}
	s.deps.Audit.Emit(ctx, e)

	return resp, err
}

func (s *Service) castOfflineBatch(ctx context.Context, batch OfflineBatch) (*models.OfflineBatchResponse, error) {
	if len(batch.Ballots) == 0 {
		return nil, &voteerr.MalformedBallot{Field: "ballots"}
	}

	// Reconstruction enforces the quorum before touching any key material.
	priv, kp, err := s.deps.Keys.ReconstructPrivateKey(ctx, batch.ElectionID, batch.Shares, batch.Operator)
	if err != nil {
		return nil, err
	}

	outcomes := make([]models.BallotOutcome, 0, len(batch.Ballots))

	// Ballots sealed under another key are rejected without decryption.
	var pending []models.EncryptedVote
	var positions []int
	for i, v := range batch.Ballots {
		if !envelope.VerifyVoteIntegrity(v, kp.PublicKeyPEM) {
			outcomes = append(outcomes, failed(i, &voteerr.FingerprintMismatch{Expected: kp.Fingerprint, Actual: v.KeyFingerprint}))
			continue
		}
		pending = append(pending, v)
		positions = append(positions, i)
	}

	result := envelope.BatchDecryptVotes(ctx, pending, priv, s.workers)
	for _, f := range result.Failures {
		outcomes = append(outcomes, failed(positions[f.Index], f.Err))
	}

	var mu sync.Mutex
	var pool errgroup.Group
	pool.SetLimit(s.workers)

	// Each ballot still goes through the single-vote transaction.
	for _, d := range result.Decrypted {
		pool.Go(func() error {
			index := positions[d.Index]
			if err := ctx.Err(); err != nil {
				mu.Lock()
				outcomes = append(outcomes, failed(index, err))
				mu.Unlock()
				return err
			}

			o := s.castDecrypted(ctx, batch.ElectionID, index, d)

			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		slog.Warn("offline batch interrupted", "election_id", batch.ElectionID, "error", err)
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	resp := &models.OfflineBatchResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status == outcomeProcessed {
			resp.Processed++
		} else {
			resp.Failed++
		}
	}

	slog.Info("offline batch processed",
		"election_id", batch.ElectionID,
		"key_pair_id", kp.ID,
		"processed", resp.Processed,
		"failed", resp.Failed,
	)

	return resp, nil
}

func (s *Service) castDecrypted(ctx context.Context, electionID string, index int, d envelope.DecryptedVote) models.BallotOutcome {
	if d.Ballot.ElectionID != electionID {
		return failed(index, &voteerr.MalformedBallot{Field: "election_id"})
	}

	rcpt, err := s.Cast(ctx, CastRequest{
		Authenticated: true,
		VoterID:       d.Ballot.VoterID,
		ElectionID:    d.Ballot.ElectionID,
		CandidateID:   d.Ballot.CandidateID,
		PollingUnitID: d.Ballot.PollingUnitID,
		Channel:       models.ChannelOffline,
		Timestamp:     d.Ballot.Timestamp,
		opened:        &d,
	})
	if err != nil {
		return failed(index, err)
	}

	return models.BallotOutcome{Index: index, Status: outcomeProcessed, ReceiptCode: rcpt.Code}
}

// failed builds a failure outcome. Infrastructure details stay in the logs.
func failed(index int, err error) models.BallotOutcome {
	reason := err.Error()
	if voteerr.KindOf(err) == voteerr.KindInfra {
		slog.Error("offline ballot failed", "index", index, "error", err)
		reason = "internal error"
	}
	return models.BallotOutcome{
		Index:  index,
		Status: outcomeFailed,
		Code:   voteerr.CodeOf(err),
		Reason: reason,
	}
}
