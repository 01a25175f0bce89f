// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/ballotbox/middleware"
	"github.com/danielhkuo/ballotbox/verification"
)

type ReceiptHandler struct {
	receipts *verification.Service
}

func NewReceiptHandler(receipts *verification.Service) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Verify handles GET /receipts/{code}. Unknown and malformed codes get the
// same 404 body so the endpoint cannot be used to probe code structure.
func (h *ReceiptHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.receipts.Verify(r.Context(), r.PathValue("code"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if !res.Valid {
		middleware.JSONResponse(w, http.StatusNotFound, res)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, res)
}
