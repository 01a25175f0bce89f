// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/ballotbox/auth"
	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/middleware"
)

// requireOperator validates the operator headers and writes a 401 when they
// are missing or wrong. The operator id is returned for auditing.
func requireOperator(w http.ResponseWriter, r *http.Request, cfg cliparse.Config) (string, bool) {
	operatorID := r.Header.Get("X-Operator-ID")
	operatorKey := r.Header.Get("X-Operator-Key")
	if operatorID == "" || operatorKey == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Operator-ID and X-Operator-Key headers required")
		return "", false
	}

	if err := auth.ValidateOperatorKey(operatorID, operatorKey, cfg.OperatorKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid operator key")
		return "", false
	}

	return operatorID, true
}
