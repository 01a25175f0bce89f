// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/casting"
	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/db"
	"github.com/danielhkuo/ballotbox/directory"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/testutil"
	"github.com/danielhkuo/ballotbox/verification"
)

type fixture struct {
	db       *sql.DB
	cfg      cliparse.Config
	keys     *custody.Service
	votes    *VoteHandler
	keyOps   *KeyHandler
	receipts *ReceiptHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	recorder := audit.NewRecorder(conn)
	store := directory.New(conn)
	keys := custody.NewService(conn, db.SQLite, recorder, custody.Config{
		KeyBits:     cfg.KeyBits,
		TotalShares: cfg.TotalShares,
		Quorum:      cfg.Quorum,
	})
	votes := casting.NewService(conn, casting.Deps{
		Directory:   store,
		Eligibility: store,
		Keys:        keys,
		Audit:       recorder,
	}, cfg.BatchWorkers)

	return &fixture{
		db:       conn,
		cfg:      cfg,
		keys:     keys,
		votes:    NewVoteHandler(votes, cfg),
		keyOps:   NewKeyHandler(keys, cfg),
		receipts: NewReceiptHandler(verification.New(conn)),
	}
}

// openElection creates an active election with one candidate and returns the
// election id, candidate id and the custodian shares of its active key.
func (f *fixture) openElection(t *testing.T) (string, string, []models.ThresholdShare) {
	t.Helper()

	electionID := testutil.CreateTestElection(t, f.db, models.ElectionActive)
	candidateID := testutil.AddTestCandidate(t, f.db, electionID, "Ada", true)

	w := f.do(f.keyOps.Generate, "POST", "/elections/"+electionID+"/keys",
		models.GenerateKeysRequest{Activate: true}, f.operator("custodian-1"), "id", electionID)
	if w.Code != http.StatusCreated {
		t.Fatalf("Generate keys failed: %d - %s", w.Code, w.Body.String())
	}

	var resp models.GenerateKeysResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.KeyPair.Status != models.KeyActive {
		t.Fatalf("Expected active key pair, got %s", resp.KeyPair.Status)
	}

	return electionID, candidateID, resp.Shares
}

func (f *fixture) operator(id string) map[string]string {
	return testutil.OperatorHeaders(f.cfg, id)
}

func (f *fixture) voterHeaders(t *testing.T, electionID string) (string, map[string]string) {
	t.Helper()
	voterID, token := testutil.CreateTestVoter(t, f.db, f.cfg, electionID)
	return voterID, map[string]string{"X-Voter-ID": voterID, "X-Voter-Token": token}
}

// do runs handler against a request built from the arguments. pathValues are
// name/value pairs set on the request as the router would.
func (f *fixture) do(handler http.HandlerFunc, method, path string, body any, headers map[string]string, pathValues ...string) *httptest.ResponseRecorder {
	req := testutil.MakeRequest(method, path, body, headers)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func (f *fixture) auditCount(t *testing.T, action, outcome string) int {
	t.Helper()
	return testutil.CountRows(t, f.db, "audit_event", "action = $1 AND outcome = $2", action, outcome)
}
