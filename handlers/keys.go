// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/middleware"
	"github.com/danielhkuo/ballotbox/models"
)

type KeyHandler struct {
	keys *custody.Service
	cfg  cliparse.Config
}

func NewKeyHandler(keys *custody.Service, cfg cliparse.Config) *KeyHandler {
	return &KeyHandler{keys: keys, cfg: cfg}
}

// PublicKey handles GET /elections/{id}/public-key
func (h *KeyHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	kp, err := h.keys.ActiveKeyPair(r.Context(), electionID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.PublicKeyResponse{
		ElectionID:   kp.ElectionID,
		Version:      kp.Version,
		PublicKeyPEM: kp.PublicKeyPEM,
		Fingerprint:  kp.Fingerprint,
	})
}

// Generate handles POST /elections/{id}/keys
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	operatorID, ok := requireOperator(w, r, h.cfg)
	if !ok {
		return
	}

	var req models.GenerateKeysRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	kp, shares, err := h.keys.GenerateElectionKeys(r.Context(), electionID, operatorID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if req.Activate {
		activated, err := h.keys.ActivateElectionKeys(r.Context(), electionID, operatorID)
		if err != nil {
			// The shares exist only in this response, so it must still be sent.
			slog.Error("failed to activate new key pair", "election_id", electionID, "key_pair_id", kp.ID, "error", err)
		} else {
			kp = activated
		}
	}

	middleware.JSONResponse(w, http.StatusCreated, models.GenerateKeysResponse{
		KeyPair: *kp,
		Shares:  shares,
	})
}

// Activate handles POST /elections/{id}/keys/activate
func (h *KeyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.keys.ActivateElectionKeys)
}

// Deactivate handles POST /elections/{id}/keys/deactivate
func (h *KeyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.keys.DeactivateElectionKeys)
}

// Retire handles POST /elections/{id}/keys/retire
func (h *KeyHandler) Retire(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.keys.RetireElectionKeys)
}

type transitionFunc func(ctx context.Context, electionID, operatorID string) (*models.ElectionKeyPair, error)

func (h *KeyHandler) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	operatorID, ok := requireOperator(w, r, h.cfg)
	if !ok {
		return
	}

	kp, err := apply(r.Context(), electionID, operatorID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, kp)
}

// List handles GET /elections/{id}/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	if _, ok := requireOperator(w, r, h.cfg); !ok {
		return
	}

	pairs, err := h.keys.KeyPairs(r.Context(), electionID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if pairs == nil {
		pairs = []*models.ElectionKeyPair{}
	}

	middleware.JSONResponse(w, http.StatusOK, pairs)
}

// Integrity handles GET /elections/{id}/keys/integrity
func (h *KeyHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	if _, ok := requireOperator(w, r, h.cfg); !ok {
		return
	}

	intact, err := h.keys.VerifyElectionKeyIntegrity(r.Context(), electionID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.KeyIntegrityResponse{
		ElectionID: electionID,
		Intact:     intact,
	})
}
