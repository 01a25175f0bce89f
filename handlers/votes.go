// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/ballotbox/auth"
	"github.com/danielhkuo/ballotbox/casting"
	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/middleware"
	"github.com/danielhkuo/ballotbox/models"
)

type VoteHandler struct {
	votes *casting.Service
	cfg   cliparse.Config
}

func NewVoteHandler(votes *casting.Service, cfg cliparse.Config) *VoteHandler {
	return &VoteHandler{votes: votes, cfg: cfg}
}

// CastWeb handles POST /elections/{id}/votes
func (h *VoteHandler) CastWeb(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// An unauthenticated attempt still goes through Cast so it is audited.
	voterID := r.Header.Get("X-Voter-ID")
	token := r.Header.Get("X-Voter-Token")
	authenticated := voterID != "" &&
		auth.ValidateVoterToken(voterID, token, h.cfg.VoterTokenSalt) == nil

	h.cast(w, r, casting.CastRequest{
		Authenticated: authenticated,
		VoterID:       voterID,
		ElectionID:    electionID,
		CandidateID:   req.CandidateID,
		PollingUnitID: req.PollingUnitID,
		Channel:       models.ChannelWeb,
	})
}

// CastUSSD handles POST /ussd/votes. The gateway is the authenticated party;
// it relays the voter id it verified over the USSD session.
func (h *VoteHandler) CastUSSD(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOperator(w, r, h.cfg); !ok {
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	h.cast(w, r, casting.CastRequest{
		Authenticated: req.VoterID != "",
		VoterID:       req.VoterID,
		ElectionID:    req.ElectionID,
		CandidateID:   req.CandidateID,
		PollingUnitID: req.PollingUnitID,
		Channel:       models.ChannelUSSD,
	})
}

func (h *VoteHandler) cast(w http.ResponseWriter, r *http.Request, req casting.CastRequest) {
	req.ClientHash = auth.HashIP(middleware.GetClientIP(r), h.cfg.VoterTokenSalt)

	rcpt, err := h.votes.Cast(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.CastVoteResponse{
		ReceiptCode: rcpt.Code,
		CastAt:      rcpt.CastAt,
		Message:     "Vote recorded. Keep your receipt code to verify it later.",
	})
}

// SubmitOfflineBatch handles POST /elections/{id}/offline-batches
func (h *VoteHandler) SubmitOfflineBatch(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	operatorID, ok := requireOperator(w, r, h.cfg)
	if !ok {
		return
	}

	var req models.OfflineBatchRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Justification == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "justification is required")
		return
	}

	ballots := make([]models.EncryptedVote, len(req.Ballots))
	for i, b := range req.Ballots {
		ballots[i] = b.Vote
	}

	resp, err := h.votes.CastOfflineBatch(r.Context(), casting.OfflineBatch{
		ElectionID: electionID,
		Operator:   custody.Requester{OperatorID: operatorID, Justification: req.Justification},
		Shares:     req.Shares,
		Ballots:    ballots,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// MarkCounted handles POST /elections/{id}/votes/counted
func (h *VoteHandler) MarkCounted(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("id")
	if electionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "election id is required")
		return
	}

	operatorID, ok := requireOperator(w, r, h.cfg)
	if !ok {
		return
	}

	var req models.MarkCountedRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	marked, err := h.votes.MarkCounted(r.Context(), electionID, operatorID, req.RecordIDs)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	slog.Info("votes marked counted", "election_id", electionID, "marked", marked)

	middleware.JSONResponse(w, http.StatusOK, models.MarkCountedResponse{Marked: marked})
}
