// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/models"
	"github.com/danielhkuo/ballotbox/testutil"
)

func TestGenerateKeys(t *testing.T) {
	f := newFixture(t)
	electionID := testutil.CreateTestElection(t, f.db, models.ElectionDraft)
	path := "/elections/" + electionID + "/keys"

	t.Run("requires operator", func(t *testing.T) {
		w := f.do(f.keyOps.Generate, "POST", path, nil, nil, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	})

	t.Run("empty body leaves key generated", func(t *testing.T) {
		w := f.do(f.keyOps.Generate, "POST", path, nil, f.operator("custodian-1"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusCreated)

		var resp models.GenerateKeysResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.KeyPair.Status != models.KeyGenerated {
			t.Errorf("Expected status generated, got %s", resp.KeyPair.Status)
		}
		if len(resp.Shares) != f.cfg.TotalShares {
			t.Errorf("Expected %d shares, got %d", f.cfg.TotalShares, len(resp.Shares))
		}
		if resp.KeyPair.Quorum != f.cfg.Quorum {
			t.Errorf("Expected quorum %d, got %d", f.cfg.Quorum, resp.KeyPair.Quorum)
		}
	})

	t.Run("second live key conflicts", func(t *testing.T) {
		w := f.do(f.keyOps.Generate, "POST", path, models.GenerateKeysRequest{Activate: true},
			f.operator("custodian-1"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusConflict)
	})

	t.Run("unknown election", func(t *testing.T) {
		w := f.do(f.keyOps.Generate, "POST", "/elections/missing/keys", nil,
			f.operator("custodian-1"), "id", "missing")
		testutil.AssertStatus(t, w, http.StatusNotFound)
	})

	if n := f.auditCount(t, audit.ActionKeyGenerate, audit.OutcomeSuccess); n != 1 {
		t.Errorf("Expected one successful generation audit event, got %d", n)
	}
}

func TestKeyLifecycleHandlers(t *testing.T) {
	f := newFixture(t)
	electionID := testutil.CreateTestElection(t, f.db, models.ElectionActive)
	base := "/elections/" + electionID

	w := f.do(f.keyOps.PublicKey, "GET", base+"/public-key", nil, nil, "id", electionID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = f.do(f.keyOps.Generate, "POST", base+"/keys", nil, f.operator("custodian-1"), "id", electionID)
	testutil.AssertStatus(t, w, http.StatusCreated)

	w = f.do(f.keyOps.Activate, "POST", base+"/keys/activate", nil, nil, "id", electionID)
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = f.do(f.keyOps.Activate, "POST", base+"/keys/activate", nil, f.operator("custodian-1"), "id", electionID)
	testutil.AssertStatus(t, w, http.StatusOK)

	var active models.ElectionKeyPair
	testutil.AssertJSON(t, w, &active)
	if active.Status != models.KeyActive || active.ActivatedAt == nil {
		t.Errorf("Expected an active key pair, got %+v", active)
	}

	t.Run("public key is published", func(t *testing.T) {
		w := f.do(f.keyOps.PublicKey, "GET", base+"/public-key", nil, nil, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp models.PublicKeyResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Fingerprint != active.Fingerprint || resp.PublicKeyPEM == "" || resp.Version != 1 {
			t.Errorf("Unexpected public key response %+v", resp)
		}
	})

	t.Run("integrity check", func(t *testing.T) {
		w := f.do(f.keyOps.Integrity, "GET", base+"/keys/integrity", nil, f.operator("auditor"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp models.KeyIntegrityResponse
		testutil.AssertJSON(t, w, &resp)
		if !resp.Intact {
			t.Error("Expected key pair to be intact")
		}
	})

	t.Run("retire before reconstruction conflicts", func(t *testing.T) {
		w := f.do(f.keyOps.Retire, "POST", base+"/keys/retire", nil, f.operator("custodian-1"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusConflict)
	})

	t.Run("deactivate stops publication", func(t *testing.T) {
		w := f.do(f.keyOps.Deactivate, "POST", base+"/keys/deactivate", nil, f.operator("custodian-2"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusOK)

		var kp models.ElectionKeyPair
		testutil.AssertJSON(t, w, &kp)
		if kp.DeactivatedBy == nil || *kp.DeactivatedBy != "custodian-2" {
			t.Errorf("Expected deactivated_by custodian-2, got %v", kp.DeactivatedBy)
		}

		w = f.do(f.keyOps.PublicKey, "GET", base+"/public-key", nil, nil, "id", electionID)
		testutil.AssertStatus(t, w, http.StatusConflict)
	})

	t.Run("history lists every key pair", func(t *testing.T) {
		w := f.do(f.keyOps.Generate, "POST", base+"/keys", nil, f.operator("custodian-1"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusCreated)

		w = f.do(f.keyOps.List, "GET", base+"/keys", nil, f.operator("auditor"), "id", electionID)
		testutil.AssertStatus(t, w, http.StatusOK)

		var pairs []models.ElectionKeyPair
		testutil.AssertJSON(t, w, &pairs)
		if len(pairs) != 2 || pairs[0].Version != 2 {
			t.Errorf("Expected two key pairs newest first, got %+v", pairs)
		}
	})
}

func TestKeyHandlers_NoKeyMaterialInResponses(t *testing.T) {
	f := newFixture(t)
	electionID, _, _ := f.openElection(t)

	w := f.do(f.keyOps.List, "GET", "/elections/"+electionID+"/keys", nil, f.operator("auditor"), "id", electionID)
	testutil.AssertStatus(t, w, http.StatusOK)

	var raw []map[string]any
	testutil.AssertJSON(t, w, &raw)
	for _, field := range []string{"wrapped_private_key", "key_hash", "share_commitments", "KeyHash", "WrappedPrivateKey"} {
		if _, ok := raw[0][field]; ok {
			t.Errorf("Expected %s to be withheld", field)
		}
	}
}
