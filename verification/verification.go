// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package verification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

const receiptCodeLen = 16

// Service answers receipt lookups. It only ever reads.
type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// Verify reports whether code belongs to a recorded vote. An unknown or
// malformed code is a normal result with Valid false, never an error, and the
// response never carries the candidate.
func (s *Service) Verify(ctx context.Context, code string) (models.VerifyVoteResponse, error) {
	code = envelope.NormalizeReceiptCode(code)
	if !wellFormed(code) {
		return models.VerifyVoteResponse{Valid: false}, nil
	}

	var name string
	var castAt time.Time
	// Receipt collisions are assumed negligible; the earliest match wins.
	err := s.db.QueryRowContext(ctx, `
		SELECT e.name, v.cast_at
		FROM cast_vote v
		JOIN election e ON e.id = v.election_id
		WHERE v.receipt_code = $1
		ORDER BY v.cast_at
		LIMIT 1
	`, code).Scan(&name, &castAt)

	if errors.Is(err, sql.ErrNoRows) {
		return models.VerifyVoteResponse{Valid: false}, nil
	}
	if err != nil {
		return models.VerifyVoteResponse{}, voteerr.Storage("query receipt", err)
	}

	castAt = castAt.UTC()
	return models.VerifyVoteResponse{Valid: true, ElectionName: name, CastAt: &castAt}, nil
}

func wellFormed(code string) bool {
	if len(code) != receiptCodeLen {
		return false
	}
	for _, c := range code {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
