// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package custody

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/db"
	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/voteerr"
)

// Config holds key generation parameters.
type Config struct {
	KeyBits     int
	TotalShares int
	Quorum      int
}

// Requester identifies who asked for a reconstruction and why.
type Requester struct {
	OperatorID    string
	Justification string
}

// Service owns election key pairs and their custodian shares.
type Service struct {
	db      *sql.DB
	dialect db.Dialect
	audit   audit.Emitter
	cfg     Config
	now     func() time.Time

	// Reconstruction is break-glass; one at a time per process.
	reconstructMu sync.Mutex
}

func NewService(conn *sql.DB, dialect db.Dialect, emitter audit.Emitter, cfg Config) *Service {
	return &Service{
		db:      conn,
		dialect: dialect,
		audit:   emitter,
		cfg:     cfg,
		now:     time.Now,
	}
}

const keyPairColumns = `
	id, election_id, version, public_key_pem, fingerprint, key_hash,
	wrapped_private_key, share_commitments, total_shares, quorum, status,
	generated_by, generated_at, activated_at, deactivated_at, deactivated_by,
	reconstructed_at, reconstruction_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyPair(row rowScanner) (*models.ElectionKeyPair, error) {
	var k models.ElectionKeyPair
	var commitments string
	var activatedAt, deactivatedAt, reconstructedAt sql.NullTime
	var deactivatedBy sql.NullString

	err := row.Scan(
		&k.ID, &k.ElectionID, &k.Version, &k.PublicKeyPEM, &k.Fingerprint, &k.KeyHash,
		&k.WrappedPrivateKey, &commitments, &k.TotalShares, &k.Quorum, &k.Status,
		&k.GeneratedBy, &k.GeneratedAt, &activatedAt, &deactivatedAt, &deactivatedBy,
		&reconstructedAt, &k.ReconstructionCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(commitments), &k.ShareCommitments); err != nil {
		return nil, err
	}
	if activatedAt.Valid {
		k.ActivatedAt = &activatedAt.Time
	}
	if deactivatedAt.Valid {
		k.DeactivatedAt = &deactivatedAt.Time
	}
	if deactivatedBy.Valid {
		k.DeactivatedBy = &deactivatedBy.String
	}
	if reconstructedAt.Valid {
		k.ReconstructedAt = &reconstructedAt.Time
	}
	return &k, nil
}

// GenerateElectionKeys creates a key pair for the election in the generated
// state and returns the custodian shares. The shares are never returned again.
func (s *Service) GenerateElectionKeys(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, []models.ThresholdShare, error) {
	kp, shares, err := s.generate(ctx, electionID, operatorID)

	e := audit.Event{
		Action:     audit.ActionKeyGenerate,
		ElectionID: electionID,
		Actor:      operatorID,
		Outcome:    audit.OutcomeSuccess,
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
	} else {
		e.Detail = map[string]any{
			"key_pair_id":  kp.ID,
			"version":      kp.Version,
			"fingerprint":  kp.Fingerprint,
			"total_shares": kp.TotalShares,
			"quorum":       kp.Quorum,
		}
	}
	s.audit.Emit(ctx, e)

	return kp, shares, err
}

func (s *Service) generate(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, []models.ThresholdShare, error) {
	if err := ValidateThreshold(s.cfg.TotalShares, s.cfg.Quorum); err != nil {
		return nil, nil, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM election WHERE id = $1)`, electionID).Scan(&exists)
	if err != nil {
		return nil, nil, voteerr.Storage("query election", err)
	}
	if !exists {
		return nil, nil, &voteerr.ElectionNotFound{ElectionID: electionID}
	}

	// Fail fast before spending seconds on RSA generation.
	if live, err := s.liveKeyPair(ctx, electionID); err != nil {
		return nil, nil, err
	} else if live != nil {
		return nil, nil, &voteerr.KeyStateConflict{Status: live.Status, Want: "no live key pair"}
	}

	pair, err := envelope.GenerateElectionKeyPair(s.cfg.KeyBits)
	if err != nil {
		return nil, nil, err
	}

	kp := &models.ElectionKeyPair{
		ID:           uuid.NewString(),
		ElectionID:   electionID,
		PublicKeyPEM: pair.PublicKeyPEM,
		Fingerprint:  pair.Fingerprint,
		TotalShares:  s.cfg.TotalShares,
		Quorum:       s.cfg.Quorum,
		Status:       models.KeyGenerated,
		GeneratedBy:  operatorID,
		GeneratedAt:  s.now().UTC(),
	}

	sealed, shares, err := SplitPrivateKey(pair.PrivateKey, kp.TotalShares, kp.Quorum, kp.ID)
	if err != nil {
		return nil, nil, &voteerr.EncryptionFailure{Op: "split private key", Err: err}
	}
	kp.KeyHash = sealed.KeyHash
	kp.WrappedPrivateKey = sealed.WrappedKey
	kp.ShareCommitments = sealed.Commitments

	commitments, err := json.Marshal(sealed.Commitments)
	if err != nil {
		return nil, nil, &voteerr.EncryptionFailure{Op: "encode commitments", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, voteerr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM election_key_pair WHERE election_id = $1
	`, electionID).Scan(&kp.Version)
	if err != nil {
		return nil, nil, voteerr.Storage("query key version", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO election_key_pair (
			id, election_id, version, public_key_pem, fingerprint, key_hash,
			wrapped_private_key, share_commitments, total_shares, quorum, status,
			generated_by, generated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, kp.ID, kp.ElectionID, kp.Version, kp.PublicKeyPEM, kp.Fingerprint, kp.KeyHash,
		kp.WrappedPrivateKey, string(commitments), kp.TotalShares, kp.Quorum, kp.Status,
		kp.GeneratedBy, kp.GeneratedAt)
	if db.IsUniqueViolation(err) {
		return nil, nil, &voteerr.KeyStateConflict{Status: models.KeyGenerated, Want: "no live key pair"}
	}
	if err != nil {
		return nil, nil, voteerr.Storage("insert key pair", err)
	}

	for _, sh := range shares {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO threshold_share (key_pair_id, share_index, key_hash, payload_digest)
			VALUES ($1, $2, $3, $4)
		`, kp.ID, sh.Index, sh.KeyHash, ShareDigest(sh))
		if err != nil {
			return nil, nil, voteerr.Storage("insert share digest", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, voteerr.Storage("commit key pair", err)
	}

	slog.Info("election key pair generated",
		"election_id", electionID,
		"key_pair_id", kp.ID,
		"version", kp.Version,
		"fingerprint", kp.Fingerprint,
	)

	return kp, shares, nil
}

// ActivateElectionKeys moves the generated key pair to active.
func (s *Service) ActivateElectionKeys(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, error) {
	kp, err := s.transition(ctx, electionID, []string{models.KeyGenerated}, func(tx *sql.Tx, kp *models.ElectionKeyPair, now time.Time) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE election_key_pair SET status = $1, activated_at = $2 WHERE id = $3
		`, models.KeyActive, now, kp.ID)
		kp.Status = models.KeyActive
		kp.ActivatedAt = &now
		return err
	})
	s.emitTransition(ctx, audit.ActionKeyActivate, electionID, operatorID, kp, err)
	return kp, err
}

// DeactivateElectionKeys takes the live key pair out of service. Shares and
// commitments are retained; the key pair can never become active again.
func (s *Service) DeactivateElectionKeys(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, error) {
	kp, err := s.transition(ctx, electionID, []string{models.KeyGenerated, models.KeyActive}, func(tx *sql.Tx, kp *models.ElectionKeyPair, now time.Time) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE election_key_pair SET status = $1, deactivated_at = $2, deactivated_by = $3 WHERE id = $4
		`, models.KeyDeactivated, now, operatorID, kp.ID)
		kp.Status = models.KeyDeactivated
		kp.DeactivatedAt = &now
		kp.DeactivatedBy = &operatorID
		return err
	})
	s.emitTransition(ctx, audit.ActionKeyDeactivate, electionID, operatorID, kp, err)
	return kp, err
}

// RetireElectionKeys closes out a key pair that has been reconstructed.
func (s *Service) RetireElectionKeys(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, error) {
	kp, err := s.transition(ctx, electionID, []string{models.KeyActive, models.KeyDeactivated}, func(tx *sql.Tx, kp *models.ElectionKeyPair, now time.Time) error {
		if kp.ReconstructedAt == nil {
			return &voteerr.KeyStateConflict{Status: kp.Status, Want: "a prior reconstruction"}
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE election_key_pair SET status = $1 WHERE id = $2
		`, models.KeyRetired, kp.ID)
		kp.Status = models.KeyRetired
		return err
	})
	s.emitTransition(ctx, audit.ActionKeyRetire, electionID, operatorID, kp, err)
	return kp, err
}

func (s *Service) transition(ctx context.Context, electionID string, from []string, apply func(*sql.Tx, *models.ElectionKeyPair, time.Time) error) (*models.ElectionKeyPair, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, voteerr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+keyPairColumns+`
		FROM election_key_pair
		WHERE election_id = $1
		ORDER BY version DESC
		LIMIT 1`+s.dialect.UpdateLock(), electionID)
	kp, err := scanKeyPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &voteerr.UnknownElection{ElectionID: electionID}
	}
	if err != nil {
		return nil, voteerr.Storage("query key pair", err)
	}

	allowed := false
	for _, st := range from {
		if kp.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &voteerr.KeyStateConflict{Status: kp.Status, Want: strings.Join(from, " or ")}
	}

	if err := apply(tx, kp, s.now().UTC()); err != nil {
		var ve voteerr.Error
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, voteerr.Storage("update key pair", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, voteerr.Storage("commit key pair", err)
	}
	return kp, nil
}

func (s *Service) emitTransition(ctx context.Context, action, electionID, operatorID string, kp *models.ElectionKeyPair, err error) {
	e := audit.Event{
		Action:     action,
		ElectionID: electionID,
		Actor:      operatorID,
		Outcome:    audit.OutcomeSuccess,
	}
	if err != nil {
		e.Outcome = audit.OutcomeFailure
		e.Code = voteerr.CodeOf(err)
	} else {
		e.Detail = map[string]any{"key_pair_id": kp.ID, "status": kp.Status}
		slog.Info("election key pair updated", "election_id", electionID, "key_pair_id", kp.ID, "status", kp.Status)
	}
	s.audit.Emit(ctx, e)
}

// liveKeyPair returns the generated or active key pair, or nil.
func (s *Service) liveKeyPair(ctx context.Context, electionID string) (*models.ElectionKeyPair, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyPairColumns+`
		FROM election_key_pair
		WHERE election_id = $1 AND status IN ('generated', 'active')
	`, electionID)
	kp, err := scanKeyPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, voteerr.Storage("query key pair", err)
	}
	return kp, nil
}

// ActiveKeyPair returns the active key pair or *voteerr.KeyUnavailable.
func (s *Service) ActiveKeyPair(ctx context.Context, electionID string) (*models.ElectionKeyPair, error) {
	return activeKeyPair(ctx, s.db, electionID, "")
}

// ActiveKeyPairTx reads the active key pair inside tx and holds a share lock
// on it until tx ends, so a concurrent deactivation waits for the caller.
func (s *Service) ActiveKeyPairTx(ctx context.Context, tx *sql.Tx, electionID string) (*models.ElectionKeyPair, error) {
	return activeKeyPair(ctx, tx, electionID, s.dialect.ShareLock())
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func activeKeyPair(ctx context.Context, q queryRower, electionID, lock string) (*models.ElectionKeyPair, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+keyPairColumns+`
		FROM election_key_pair
		WHERE election_id = $1 AND status = 'active'`+lock, electionID)
	kp, err := scanKeyPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &voteerr.KeyUnavailable{ElectionID: electionID}
	}
	if err != nil {
		return nil, voteerr.Storage("query key pair", err)
	}
	return kp, nil
}

// KeyPairs lists every key pair ever generated for the election, newest first.
func (s *Service) KeyPairs(ctx context.Context, electionID string) ([]*models.ElectionKeyPair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyPairColumns+`
		FROM election_key_pair
		WHERE election_id = $1
		ORDER BY version DESC
	`, electionID)
	if err != nil {
		return nil, voteerr.Storage("query key pairs", err)
	}
	defer rows.Close()

	var pairs []*models.ElectionKeyPair
	for rows.Next() {
		kp, err := scanKeyPair(rows)
		if err != nil {
			return nil, voteerr.Storage("scan key pair", err)
		}
		pairs = append(pairs, kp)
	}
	if err := rows.Err(); err != nil {
		return nil, voteerr.Storage("query key pairs", err)
	}
	return pairs, nil
}

// VerifyElectionKeyIntegrity recomputes the newest key pair's fingerprint
// and compares it with the stored one. It is a consistency check only.
func (s *Service) VerifyElectionKeyIntegrity(ctx context.Context, electionID string) (bool, error) {
	pairs, err := s.KeyPairs(ctx, electionID)
	if err != nil {
		return false, err
	}
	if len(pairs) == 0 {
		return false, &voteerr.UnknownElection{ElectionID: electionID}
	}

	kp := pairs[0]
	if _, err := envelope.ParsePublicKey(kp.PublicKeyPEM); err != nil {
		slog.Warn("stored public key does not parse", "election_id", electionID, "key_pair_id", kp.ID)
		return false, nil
	}

	intact := envelope.Fingerprint(kp.PublicKeyPEM) == kp.Fingerprint
	if !intact {
		slog.Warn("election key fingerprint mismatch", "election_id", electionID, "key_pair_id", kp.ID)
	}
	return intact, nil
}
