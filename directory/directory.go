// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

// Decision is an eligibility verdict for one voter in one election.
type Decision struct {
	Eligible bool
	Reason   string
}

// Store reads elections, candidates and eligibility decisions. It never writes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Election returns the election or *voteerr.ElectionNotFound.
func (s *Store) Election(ctx context.Context, electionID string) (*models.Election, error) {
	var e models.Election
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, starts_at, ends_at, created_at
		FROM election
		WHERE id = $1
	`, electionID).Scan(&e.ID, &e.Name, &e.Status, &e.StartsAt, &e.EndsAt, &e.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &voteerr.ElectionNotFound{ElectionID: electionID}
	}
	if err != nil {
		return nil, voteerr.Storage("query election", err)
	}
	return &e, nil
}

// Candidate returns the candidate if it belongs to the election, otherwise
// *voteerr.InvalidCandidate. Inactive candidates are returned as found.
func (s *Store) Candidate(ctx context.Context, electionID, candidateID string) (*models.Candidate, error) {
	var c models.Candidate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, election_id, name, active
		FROM candidate
		WHERE id = $1 AND election_id = $2
	`, candidateID, electionID).Scan(&c.ID, &c.ElectionID, &c.Name, &c.Active)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &voteerr.InvalidCandidate{CandidateID: candidateID}
	}
	if err != nil {
		return nil, voteerr.Storage("query candidate", err)
	}
	return &c, nil
}

// CheckEligibility returns the recorded decision. Voters with no decision
// on file are not eligible.
func (s *Store) CheckEligibility(ctx context.Context, voterID, electionID string) (Decision, error) {
	var d Decision
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT eligible, reason
		FROM voter_eligibility
		WHERE voter_id = $1 AND election_id = $2
	`, voterID, electionID).Scan(&d.Eligible, &reason)

	if errors.Is(err, sql.ErrNoRows) {
		return Decision{Eligible: false, Reason: "not registered for this election"}, nil
	}
	if err != nil {
		return Decision{}, voteerr.Storage("query eligibility", err)
	}

	d.Reason = reason.String
	return d, nil
}
