// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/ballotbox/models"
)

// Audited actions
const (
	ActionCastVote       = "vote.cast"
	ActionOfflineBatch   = "vote.offline_batch"
	ActionMarkCounted    = "vote.mark_counted"
	ActionKeyGenerate    = "key.generate"
	ActionKeyActivate    = "key.activate"
	ActionKeyDeactivate  = "key.deactivate"
	ActionKeyRetire      = "key.retire"
	ActionKeyReconstruct = "key.reconstruct"
)

// Outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one structured audit record.
type Event struct {
	Action     string
	Severity   string
	ElectionID string
	Actor      string
	Outcome    string
	Code       string
	Detail     map[string]any
}

// Emitter accepts audit events. Emit never returns an error: a failed
// emission must not change the outcome of the audited operation.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Recorder writes events to the audit_event table.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Emit inserts e. Failures are logged and swallowed.
func (r *Recorder) Emit(ctx context.Context, e Event) {
	if e.Severity == "" {
		e.Severity = models.SeverityInfo
	}

	var detail *string
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			slog.Warn("failed to encode audit detail", "action", e.Action, "error", err)
		} else {
			s := string(b)
			detail = &s
		}
	}

	// The audited operation may already be done with ctx; the record still has to land.
	ctx = context.WithoutCancel(ctx)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_event (id, action, severity, election_id, actor, outcome, code, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), e.Action, e.Severity, nullable(e.ElectionID), nullable(e.Actor),
		e.Outcome, nullable(e.Code), detail, r.now().UTC())
	if err != nil {
		slog.Error("failed to record audit event",
			"action", e.Action,
			"election_id", e.ElectionID,
			"outcome", e.Outcome,
			"error", err,
		)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
