// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/auth"
	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/db"
)

// TestKeyBits keeps RSA generation fast in tests.
const TestKeyBits = 2048

// SetupTestDB creates a fresh file-backed sqlite database with the full schema.
// The file lives in t.TempDir() and is removed with it.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ballotbox.db")
	conn, err := db.Open(db.SQLite, "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:            3318,
		DatabaseURL:     "file::memory:",
		DatabaseType:    string(db.SQLite),
		VoterTokenSalt:  "test-voter-salt",
		OperatorKeySalt: "test-operator-salt",
		KeyBits:         TestKeyBits,
		TotalShares:     5,
		Quorum:          3,
		BatchWorkers:    4,
	}
}

// CreateTestElection creates an election whose voting window is open now.
// status should be "draft", "active", "paused", "completed" or "cancelled".
func CreateTestElection(t *testing.T, conn *sql.DB, status string) string {
	t.Helper()

	now := time.Now().UTC()
	return CreateTestElectionWindow(t, conn, status, now.Add(-time.Hour), now.Add(time.Hour))
}

// CreateTestElectionWindow creates an election with an explicit voting window.
func CreateTestElectionWindow(t *testing.T, conn *sql.DB, status string, startsAt, endsAt time.Time) string {
	t.Helper()

	id := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO election (id, name, status, starts_at, ends_at, created_at)
		VALUES ($1, 'Test Election', $2, $3, $4, $5)
	`, id, status, startsAt.UTC(), endsAt.UTC(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test election: %v", err)
	}

	return id
}

// AddTestCandidate adds a candidate to an election and returns its ID
func AddTestCandidate(t *testing.T, conn *sql.DB, electionID, name string, active bool) string {
	t.Helper()

	id := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO candidate (id, election_id, name, active)
		VALUES ($1, $2, $3, $4)
	`, id, electionID, name, active)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return id
}

// SetEligibility records an eligibility decision for a voter
func SetEligibility(t *testing.T, conn *sql.DB, voterID, electionID string, eligible bool, reason string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO voter_eligibility (voter_id, election_id, eligible, reason)
		VALUES ($1, $2, $3, $4)
	`, voterID, electionID, eligible, reason)
	if err != nil {
		t.Fatalf("Failed to record eligibility: %v", err)
	}
}

// CreateTestVoter registers an eligible voter and returns the voter ID and token
func CreateTestVoter(t *testing.T, conn *sql.DB, cfg cliparse.Config, electionID string) (voterID, token string) {
	t.Helper()

	voterID = "voter-" + uuid.NewString()[:8]
	SetEligibility(t, conn, voterID, electionID, true, "")
	return voterID, auth.GenerateVoterToken(voterID, cfg.VoterTokenSalt)
}

// OperatorHeaders returns the headers that authenticate an operator
func OperatorHeaders(cfg cliparse.Config, operatorID string) map[string]string {
	return map[string]string{
		"X-Operator-ID":  operatorID,
		"X-Operator-Key": auth.GenerateOperatorKey(operatorID, cfg.OperatorKeySalt),
	}
}

// CountRows returns the number of rows in table matching where
func CountRows(t *testing.T, conn *sql.DB, table, where string, args ...any) int {
	t.Helper()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE `+where, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s rows: %v", table, err)
	}
	return n
}

// RecordingEmitter is an audit.Emitter that keeps events in memory
type RecordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *RecordingEmitter) Emit(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *RecordingEmitter) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// ByAction returns recorded events with the given action
func (r *RecordingEmitter) ByAction(action string) []audit.Event {
	var out []audit.Event
	for _, e := range r.Events() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// FailingEmitter simulates an audit sink that is down. Like a real
// emitter it never surfaces the failure to the caller.
type FailingEmitter struct {
	mu    sync.Mutex
	calls int
}

func (f *FailingEmitter) Emit(_ context.Context, _ audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

// Calls returns how many times Emit was called
func (f *FailingEmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
