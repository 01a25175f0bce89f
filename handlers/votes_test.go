// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/auth"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/envelope"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/testutil"
)

func voterToken(f *fixture, voterID string) string {
	return auth.GenerateVoterToken(voterID, f.cfg.VoterTokenSalt)
}

func TestCastWeb(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, _ := f.openElection(t)

	ballot := models.CastVoteRequest{CandidateID: candidateID, PollingUnitID: "pu-7"}
	path := "/elections/" + electionID + "/votes"

	t.Run("success returns receipt", func(t *testing.T) {
		_, headers := f.voterHeaders(t, electionID)

		w := f.do(f.votes.CastWeb, "POST", path, ballot, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusCreated)

		var resp models.CastVoteResponse
		testutil.AssertJSON(t, w, &resp)
		if len(resp.ReceiptCode) != 16 {
			t.Errorf("Expected 16 character receipt, got %q", resp.ReceiptCode)
		}
		if resp.CastAt.IsZero() {
			t.Error("Expected cast_at to be set")
		}
	})

	t.Run("second vote is rejected", func(t *testing.T) {
		_, headers := f.voterHeaders(t, electionID)

		w := f.do(f.votes.CastWeb, "POST", path, ballot, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusCreated)

		w = f.do(f.votes.CastWeb, "POST", path, ballot, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusConflict)

		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Code != "already_voted" {
			t.Errorf("Expected code 'already_voted', got '%s'", resp.Code)
		}
	})

	t.Run("ineligible voter", func(t *testing.T) {
		testutil.SetEligibility(t, f.db, "suspended-voter", electionID, false, "registration under review")
		headers := map[string]string{
			"X-Voter-ID":    "suspended-voter",
			"X-Voter-Token": voterToken(f, "suspended-voter"),
		}

		w := f.do(f.votes.CastWeb, "POST", path, ballot, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusForbidden)

		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if !strings.Contains(resp.Message, "registration under review") {
			t.Errorf("Expected reason in message, got '%s'", resp.Message)
		}
	})

	t.Run("inactive candidate", func(t *testing.T) {
		_, headers := f.voterHeaders(t, electionID)
		withdrawn := testutil.AddTestCandidate(t, f.db, electionID, "Withdrawn", false)

		w := f.do(f.votes.CastWeb, "POST", path,
			models.CastVoteRequest{CandidateID: withdrawn, PollingUnitID: "pu-7"}, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, headers := f.voterHeaders(t, electionID)
		req := httptest.NewRequest("POST", path, strings.NewReader("{not json"))
		req.SetPathValue("id", electionID)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()

		f.votes.CastWeb(w, req)
		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})
}

func TestCastWeb_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, _ := f.openElection(t)
	voterID, _ := f.voterHeaders(t, electionID)

	ballot := models.CastVoteRequest{CandidateID: candidateID, PollingUnitID: "pu-7"}
	path := "/elections/" + electionID + "/votes"

	testCases := []struct {
		name    string
		headers map[string]string
	}{
		{"no headers", nil},
		{"missing token", map[string]string{"X-Voter-ID": voterID}},
		{"wrong token", map[string]string{"X-Voter-ID": voterID, "X-Voter-Token": "forged"}},
		{"token for another voter", map[string]string{
			"X-Voter-ID":    voterID,
			"X-Voter-Token": voterToken(f, "someone-else"),
		}},
		{"operator key as voter token", map[string]string{
			"X-Voter-ID":    voterID,
			"X-Voter-Token": f.operator(voterID)["X-Operator-Key"],
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(f.votes.CastWeb, "POST", path, ballot, tc.headers, "id", electionID)
			testutil.AssertStatus(t, w, http.StatusUnauthorized)
		})
	}

	if n := testutil.CountRows(t, f.db, "cast_vote", "election_id = $1", electionID); n != 0 {
		t.Errorf("Expected no votes, got %d", n)
	}
	// Every rejected attempt is still audited
	if n := f.auditCount(t, audit.ActionCastVote, audit.OutcomeFailure); n != len(testCases) {
		t.Errorf("Expected %d failed cast audit events, got %d", len(testCases), n)
	}
}

func TestCast_ServerSealsEveryBallot(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, shares := f.openElection(t)
	bob := testutil.AddTestCandidate(t, f.db, electionID, "Bob", true)

	kp, err := f.keys.ActiveKeyPair(t.Context(), electionID)
	if err != nil {
		t.Fatal(err)
	}
	// A client-sealed payload naming someone else, and one that is not a ballot at all.
	foreign, err := envelope.EncryptVote(models.Ballot{
		VoterID:       "someone-else",
		ElectionID:    electionID,
		CandidateID:   bob,
		PollingUnitID: "pu-7",
		Timestamp:     time.Now(),
		Channel:       models.ChannelWeb,
	}, kp.PublicKeyPEM)
	if err != nil {
		t.Fatal(err)
	}
	junk := map[string]string{
		"ciphertext":      "AAAA",
		"session_key":     "AAAA",
		"iv":              "AAAA",
		"content_hash":    strings.Repeat("0", 64),
		"key_fingerprint": kp.Fingerprint,
	}

	webVoter, webHeaders := f.voterHeaders(t, electionID)
	w := f.do(f.votes.CastWeb, "POST", "/elections/"+electionID+"/votes", map[string]any{
		"candidate_id":    candidateID,
		"polling_unit_id": "pu-7",
		"sealed":          foreign,
	}, webHeaders, "id", electionID)
	testutil.AssertStatus(t, w, http.StatusCreated)

	ussdVoter, _ := testutil.CreateTestVoter(t, f.db, f.cfg, electionID)
	w = f.do(f.votes.CastUSSD, "POST", "/ussd/votes", map[string]any{
		"voter_id":        ussdVoter,
		"election_id":     electionID,
		"candidate_id":    candidateID,
		"polling_unit_id": "pu-ussd",
		"sealed":          junk,
	}, f.operator("ussd-gw"))
	testutil.AssertStatus(t, w, http.StatusCreated)

	priv, _, err := f.keys.ReconstructPrivateKey(t.Context(), electionID, shares[:f.cfg.Quorum],
		custody.Requester{OperatorID: "custodian-1", Justification: "verify stored ballots"})
	if err != nil {
		t.Fatal(err)
	}

	for _, voterID := range []string{webVoter, ussdVoter} {
		var ev models.EncryptedVote
		var stored string
		err := f.db.QueryRow(`
			SELECT candidate_id, encrypted_payload, session_key, iv, content_hash, key_fingerprint
			FROM cast_vote WHERE voter_id = $1
		`, voterID).Scan(&stored, &ev.Ciphertext, &ev.SessionKey, &ev.IV, &ev.ContentHash, &ev.KeyFingerprint)
		if err != nil {
			t.Fatal(err)
		}
		if ev.ContentHash == foreign.ContentHash || ev.Ciphertext == junk["ciphertext"] {
			t.Errorf("Expected the server to seal the ballot for %s, got the client payload", voterID)
		}

		b, err := envelope.DecryptVote(ev, priv)
		if err != nil {
			t.Fatalf("Stored ballot for %s does not decrypt: %v", voterID, err)
		}
		if b.VoterID != voterID || b.CandidateID != candidateID || stored != candidateID {
			t.Errorf("Sealed ballot %+v does not match record for %s (candidate %s)", b, voterID, stored)
		}
	}
}

func TestCastUSSD(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, _ := f.openElection(t)
	voterID, _ := testutil.CreateTestVoter(t, f.db, f.cfg, electionID)

	ballot := models.CastVoteRequest{
		VoterID:       voterID,
		ElectionID:    electionID,
		CandidateID:   candidateID,
		PollingUnitID: "pu-ussd",
	}

	t.Run("gateway without operator key", func(t *testing.T) {
		w := f.do(f.votes.CastUSSD, "POST", "/ussd/votes", ballot, nil)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("gateway with wrong key", func(t *testing.T) {
		headers := map[string]string{"X-Operator-ID": "ussd-gw", "X-Operator-Key": "nope"}
		w := f.do(f.votes.CastUSSD, "POST", "/ussd/votes", ballot, headers)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("missing voter id", func(t *testing.T) {
		noVoter := ballot
		noVoter.VoterID = ""
		w := f.do(f.votes.CastUSSD, "POST", "/ussd/votes", noVoter, f.operator("ussd-gw"))
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("relayed vote", func(t *testing.T) {
		w := f.do(f.votes.CastUSSD, "POST", "/ussd/votes", ballot, f.operator("ussd-gw"))
		testutil.AssertStatus(t, w, http.StatusCreated)

		if n := testutil.CountRows(t, f.db, "cast_vote", "voter_id = $1 AND channel = 'ussd'", voterID); n != 1 {
			t.Errorf("Expected one USSD vote, got %d", n)
		}
	})

	t.Run("web after USSD is rejected", func(t *testing.T) {
		headers := map[string]string{
			"X-Voter-ID":    voterID,
			"X-Voter-Token": voterToken(f, voterID),
		}
		w := f.do(f.votes.CastWeb, "POST", "/elections/"+electionID+"/votes",
			models.CastVoteRequest{CandidateID: candidateID, PollingUnitID: "pu-7"}, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusConflict)
	})
}

func TestSubmitOfflineBatch(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, shares := f.openElection(t)

	kp, err := f.keys.ActiveKeyPair(t.Context(), electionID)
	if err != nil {
		t.Fatal(err)
	}

	var ballots []models.OfflineBallot
	for i := 0; i < 3; i++ {
		voterID, _ := testutil.CreateTestVoter(t, f.db, f.cfg, electionID)
		ev, err := envelope.EncryptVote(models.Ballot{
			VoterID:       voterID,
			ElectionID:    electionID,
			CandidateID:   candidateID,
			PollingUnitID: "pu-remote",
			Timestamp:     time.Now().Add(-time.Minute),
			Channel:       models.ChannelOffline,
		}, kp.PublicKeyPEM)
		if err != nil {
			t.Fatal(err)
		}
		ballots = append(ballots, models.OfflineBallot{Vote: *ev})
	}

	path := "/elections/" + electionID + "/offline-batches"

	t.Run("requires operator", func(t *testing.T) {
		w := f.do(f.votes.SubmitOfflineBatch, "POST", path,
			models.OfflineBatchRequest{Justification: "upload", Shares: shares[:3], Ballots: ballots}, nil, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("requires justification", func(t *testing.T) {
		w := f.do(f.votes.SubmitOfflineBatch, "POST", path,
			models.OfflineBatchRequest{Shares: shares[:3], Ballots: ballots}, f.operator("uploader"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusBadRequest)
	})

	t.Run("insufficient shares", func(t *testing.T) {
		w := f.do(f.votes.SubmitOfflineBatch, "POST", path,
			models.OfflineBatchRequest{Justification: "upload", Shares: shares[:2], Ballots: ballots},
			f.operator("uploader"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusUnprocessableEntity)

		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Code != "insufficient_shares" {
			t.Errorf("Expected code 'insufficient_shares', got '%s'", resp.Code)
		}
		if n := testutil.CountRows(t, f.db, "cast_vote", "election_id = $1", electionID); n != 0 {
			t.Errorf("Expected no votes, got %d", n)
		}
	})

	t.Run("quorum casts every ballot", func(t *testing.T) {
		w := f.do(f.votes.SubmitOfflineBatch, "POST", path,
			models.OfflineBatchRequest{Justification: "upload from pu-remote", Shares: shares[2:], Ballots: ballots},
			f.operator("uploader"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp models.OfflineBatchResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Processed != 3 || resp.Failed != 0 {
			t.Errorf("Expected 3 processed, got %+v", resp)
		}
		if n := f.auditCount(t, audit.ActionKeyReconstruct, audit.OutcomeSuccess); n != 1 {
			t.Errorf("Expected one successful reconstruction audit event, got %d", n)
		}
	})
}

func TestMarkCountedHandler(t *testing.T) {
	f := newFixture(t)
	electionID, candidateID, _ := f.openElection(t)

	for i := 0; i < 2; i++ {
		_, headers := f.voterHeaders(t, electionID)
		w := f.do(f.votes.CastWeb, "POST", "/elections/"+electionID+"/votes",
			models.CastVoteRequest{CandidateID: candidateID, PollingUnitID: "pu-7"}, headers, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusCreated)
	}

	rows, err := f.db.Query(`SELECT id FROM cast_vote WHERE election_id = $1`, electionID)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	path := "/elections/" + electionID + "/votes/counted"

	w := f.do(f.votes.MarkCounted, "POST", path, models.MarkCountedRequest{RecordIDs: ids}, nil, "id", electionID)
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = f.do(f.votes.MarkCounted, "POST", path, models.MarkCountedRequest{}, f.operator("tally"), "id", electionID)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = f.do(f.votes.MarkCounted, "POST", path, models.MarkCountedRequest{RecordIDs: ids}, f.operator("tally"), "id", electionID)
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.MarkCountedResponse
	testutil.AssertJSON(t, w, &resp)
	if resp.Marked != 2 {
		t.Errorf("Expected 2 marked, got %d", resp.Marked)
	}

	if n := testutil.CountRows(t, f.db, "cast_vote", "election_id = $1 AND counted = TRUE", electionID); n != 2 {
		t.Errorf("Expected 2 counted votes, got %d", n)
	}
}
