// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package casting

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/db"
	"github.com/danielhkuo/ballotbox/directory"
	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

// Eligibility supplies the voter verification decision for an election.
type Eligibility interface {
	CheckEligibility(ctx context.Context, voterID, electionID string) (directory.Decision, error)
}

// Directory supplies election and candidate lookups.
type Directory interface {
	Election(ctx context.Context, electionID string) (*models.Election, error)
	Candidate(ctx context.Context, electionID, candidateID string) (*models.Candidate, error)
}

// KeySource is the part of key custody the casting path needs.
type KeySource interface {
	ActiveKeyPairTx(ctx context.Context, tx *sql.Tx, electionID string) (*models.ElectionKeyPair, error)
	ReconstructPrivateKey(ctx context.Context, electionID string, shares []models.ThresholdShare, req custody.Requester) (*rsa.PrivateKey, *models.ElectionKeyPair, error)
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Directory   Directory
	Eligibility Eligibility
	Keys        KeySource
	Audit       audit.Emitter
}

// Service is the only code path that creates CastVoteRecords.
type Service struct {
	db      *sql.DB
	deps    Deps
	workers int
	now     func() time.Time
}

func NewService(conn *sql.DB, deps Deps, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		db:      conn,
		deps:    deps,
		workers: workers,
		now:     time.Now,
	}
}

// CastRequest is one ballot arriving through any channel.
type CastRequest struct {
	// Authenticated is set by the caller once the voter's session (or, for
	// USSD and offline ballots, the operator) has been verified.
	Authenticated bool
	VoterID       string
	ElectionID    string
	CandidateID   string
	PollingUnitID string
	Channel       models.Channel

	// Timestamp is when the ballot was marked. Zero means now. Offline
	// ballots carry the time they were sealed at the polling unit.
	Timestamp time.Time

	// ClientHash is an optional salted client identifier for the audit trail.
	ClientHash string

	// opened is set only by the offline path: a sealed ballot that has
	// already been decrypted. Every other ballot is sealed by the server.
	opened *envelope.DecryptedVote
}

// Receipt is returned only for a committed vote.
type Receipt struct {
	Code     string
	CastAt   time.Time
	RecordID string
}

// Cast runs the preconditions, then seals and records the ballot in a single
// transaction. Exactly one audit event is emitted per call, whatever the outcome.
func (s *Service) Cast(ctx context.Context, req CastRequest) (*Receipt, error) {
	rcpt, err := s.cast(ctx, req)
	s.emitCast(ctx, req, err)
	return rcpt, err
}

func (s *Service) cast(ctx context.Context, req CastRequest) (*Receipt, error) {
	if !req.Authenticated || req.VoterID == "" {
		return nil, &voteerr.Unauthenticated{}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	decision, err := s.deps.Eligibility.CheckEligibility(ctx, req.VoterID, req.ElectionID)
	if err != nil {
		return nil, err
	}
	if !decision.Eligible {
		return nil, &voteerr.Ineligible{Reason: decision.Reason}
	}

	election, err := s.deps.Directory.Election(ctx, req.ElectionID)
	if err != nil {
		return nil, err
	}
	if election.Status != models.ElectionActive {
		return nil, &voteerr.ElectionNotActive{Status: election.Status}
	}

	markedAt := req.Timestamp
	if markedAt.IsZero() {
		markedAt = s.now()
	}
	markedAt = markedAt.UTC()
	if markedAt.Before(election.StartsAt) || !markedAt.Before(election.EndsAt) {
		return nil, &voteerr.OutsideVotingWindow{StartsAt: election.StartsAt, EndsAt: election.EndsAt}
	}

	// Cheap early answer; the authoritative check is repeated in the transaction.
	voted, err := hasVoted(ctx, s.db, req.VoterID, req.ElectionID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, &voteerr.AlreadyVoted{}
	}

	candidate, err := s.deps.Directory.Candidate(ctx, req.ElectionID, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if !candidate.Active {
		return nil, &voteerr.InvalidCandidate{CandidateID: req.CandidateID}
	}

	ballot := models.Ballot{
		VoterID:       req.VoterID,
		ElectionID:    req.ElectionID,
		CandidateID:   req.CandidateID,
		PollingUnitID: req.PollingUnitID,
		Timestamp:     markedAt,
		Channel:       req.Channel,
	}

	return s.commit(ctx, ballot, req)
}

// commit is the atomic part of a cast. Nothing in here may touch s.db
// directly: with a single-connection pool that would deadlock on the tx.
func (s *Service) commit(ctx context.Context, ballot models.Ballot, req CastRequest) (*Receipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, voteerr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	voted, err := hasVoted(ctx, tx, ballot.VoterID, ballot.ElectionID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, &voteerr.AlreadyVoted{}
	}

	// Read under a share lock so a concurrent deactivation waits for this cast.
	kp, err := s.deps.Keys.ActiveKeyPairTx(ctx, tx, ballot.ElectionID)
	if err != nil {
		return nil, err
	}

	var sealed *models.EncryptedVote
	if o := req.opened; o != nil {
		if !envelope.VerifyVoteIntegrity(o.Vote, kp.PublicKeyPEM) {
			return nil, &voteerr.FingerprintMismatch{Expected: kp.Fingerprint, Actual: o.Vote.KeyFingerprint}
		}
		// The record must describe exactly what the sealed payload says.
		if !sameBallot(o.Ballot, ballot) {
			return nil, &voteerr.MalformedBallot{Field: "sealed"}
		}
		sealed = &o.Vote
	} else {
		sealed, err = envelope.EncryptVote(ballot, kp.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
	}

	rec := models.CastVoteRecord{
		ID:            uuid.NewString(),
		VoterID:       ballot.VoterID,
		ElectionID:    ballot.ElectionID,
		CandidateID:   ballot.CandidateID,
		PollingUnitID: ballot.PollingUnitID,
		Vote:          *sealed,
		Channel:       ballot.Channel,
		ReceiptCode:   envelope.ReceiptCode(ballot, *sealed),
		CastAt:        s.now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cast_vote (
			id, voter_id, election_id, candidate_id, polling_unit_id, channel,
			encrypted_payload, session_key, iv, content_hash, key_fingerprint,
			receipt_code, cast_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rec.ID, rec.VoterID, rec.ElectionID, rec.CandidateID, rec.PollingUnitID, string(rec.Channel),
		rec.Vote.Ciphertext, rec.Vote.SessionKey, rec.Vote.IV, rec.Vote.ContentHash, rec.Vote.KeyFingerprint,
		rec.ReceiptCode, rec.CastAt)
	if db.IsUniqueViolation(err) {
		return nil, &voteerr.AlreadyVoted{}
	}
	if err != nil {
		return nil, voteerr.Storage("insert cast vote", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vote_audit (id, cast_vote_id, election_id, voter_hash, channel, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), rec.ID, rec.ElectionID, envelope.HashVoterID(rec.VoterID),
		string(rec.Channel), rec.Vote.ContentHash, rec.CastAt)
	if err != nil {
		return nil, voteerr.Storage("insert vote audit", err)
	}

	if err := tx.Commit(); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, &voteerr.AlreadyVoted{}
		}
		return nil, voteerr.Storage("commit vote", err)
	}

	slog.Info("vote cast",
		"election_id", rec.ElectionID,
		"channel", rec.Channel,
		"polling_unit_id", rec.PollingUnitID,
		"key_fingerprint", kp.Fingerprint,
	)

	return &Receipt{Code: rec.ReceiptCode, CastAt: rec.CastAt, RecordID: rec.ID}, nil
}

func validateRequest(req CastRequest) error {
	switch {
	case !req.Channel.Valid():
		return &voteerr.MalformedBallot{Field: "channel"}
	case strings.TrimSpace(req.ElectionID) == "":
		return &voteerr.MalformedBallot{Field: "election_id"}
	case strings.TrimSpace(req.CandidateID) == "":
		return &voteerr.MalformedBallot{Field: "candidate_id"}
	case strings.TrimSpace(req.PollingUnitID) == "":
		return &voteerr.MalformedBallot{Field: "polling_unit_id"}
	}
	return nil
}

// sameBallot reports whether a decrypted ballot names the same voter,
// election, candidate, polling unit and time as the one being recorded.
func sameBallot(opened, recorded models.Ballot) bool {
	return opened.VoterID == recorded.VoterID &&
		opened.ElectionID == recorded.ElectionID &&
		opened.CandidateID == recorded.CandidateID &&
		opened.PollingUnitID == recorded.PollingUnitID &&
		opened.Timestamp.Equal(recorded.Timestamp)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func hasVoted(ctx context.Context, q queryRower, voterID, electionID string) (bool, error) {
	var voted bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM cast_vote WHERE voter_id = $1 AND election_id = $2)
	`, voterID, electionID).Scan(&voted)
	if err != nil {
		return false, voteerr.Storage("check existing vote", err)
	}
	return voted, nil
}

func (s *Service) emitCast(ctx context.Context, req CastRequest, err error) {
	e := audit.Event{
		Action:     audit.ActionCastVote,
		ElectionID: req.ElectionID,
		Outcome:    audit.OutcomeSuccess,
		Detail: map[string]any{
			"channel":         string(req.Channel),
			"polling_unit_id": req.PollingUnitID,
			"pre_sealed":      req.opened != nil,
		},
	}
	if req.VoterID != "" {
		e.Actor = envelope.HashVoterID(req.VoterID)
	}
	if req.ClientHash != "" {
		e.Detail["client_hash"] = req.ClientHash
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
		if voteerr.KindOf(err) == voteerr.KindInfra {
			slog.Error("vote cast failed", "election_id", req.ElectionID, "channel", req.Channel, "error", err)
		}
	}
	s.deps.Audit.Emit(ctx, e)
}

// MarkCounted flips the counted flag on the given records. It is the only
// update ever applied to a CastVoteRecord. Records already counted, or that
// belong to another election, are left alone; the number changed is returned.
func (s *Service) MarkCounted(ctx context.Context, electionID, operatorID string, recordIDs []string) (int64, error) {
	n, err := s.markCounted(ctx, electionID, recordIDs)

	e := audit.Event{
		Action:     audit.ActionMarkCounted,
		ElectionID: electionID,
		Actor:      operatorID,
		Outcome:    audit.OutcomeSuccess,
		Detail:     map[string]any{"requested": len(recordIDs), "marked": n},
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
	}
	s.deps.Audit.Emit(ctx, e)

	return n, err
}

func (s *Service) markCounted(ctx context.Context, electionID string, recordIDs []string) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, &voteerr.MalformedBallot{Field: "record_ids"}
	}

	args := make([]any, 0, len(recordIDs)+1)
	args = append(args, electionID)
	placeholders := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cast_vote SET counted = TRUE
		WHERE election_id = $1 AND counted = FALSE AND id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return 0, voteerr.Storage("mark counted", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, voteerr.Storage("mark counted", err)
	}
	return n, nil
}
