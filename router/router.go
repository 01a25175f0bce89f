// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/ballotbox/audit"
	"github.com/danielhkuo/ballotbox/casting"
	"github.com/danielhkuo/ballotbox/cliparse"
	"github.com/danielhkuo/ballotbox/custody"
	"github.com/danielhkuo/ballotbox/db"
	"github.com/danielhkuo/ballotbox/directory"
	"github.com/danielhkuo/ballotbox/handlers"
	"github.com/danielhkuo/ballotbox/middleware"
	"github.com/danielhkuo/ballotbox/verification"
)

func NewRouter(conn *sql.DB, dialect db.Dialect, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Collaborators
	recorder := audit.NewRecorder(conn)
	store := directory.New(conn)
	keys := custody.NewService(conn, dialect, recorder, custody.Config{
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

	// Initialize handlers
	voteHandler := handlers.NewVoteHandler(votes, cfg)
	keyHandler := handlers.NewKeyHandler(keys, cfg)
	receiptHandler := handlers.NewReceiptHandler(verification.New(conn))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Voting channels
	mux.HandleFunc("POST /elections/{id}/votes", middleware.WithLogging(voteHandler.CastWeb))
	mux.HandleFunc("POST /ussd/votes", middleware.WithLogging(voteHandler.CastUSSD))
	mux.HandleFunc("POST /elections/{id}/offline-batches", middleware.WithLogging(voteHandler.SubmitOfflineBatch))
	mux.HandleFunc("POST /elections/{id}/votes/counted", middleware.WithLogging(voteHandler.MarkCounted))

	// Receipts (public)
	mux.HandleFunc("GET /receipts/{code}", middleware.WithLogging(receiptHandler.Verify))

	// Key custody
	mux.HandleFunc("GET /elections/{id}/public-key", middleware.WithLogging(keyHandler.PublicKey))
	mux.HandleFunc("GET /elections/{id}/keys", middleware.WithLogging(keyHandler.List))
	mux.HandleFunc("POST /elections/{id}/keys", middleware.WithLogging(keyHandler.Generate))
	mux.HandleFunc("POST /elections/{id}/keys/activate", middleware.WithLogging(keyHandler.Activate))
	mux.HandleFunc("POST /elections/{id}/keys/deactivate", middleware.WithLogging(keyHandler.Deactivate))
	mux.HandleFunc("POST /elections/{id}/keys/retire", middleware.WithLogging(keyHandler.Retire))
	mux.HandleFunc("GET /elections/{id}/keys/integrity", middleware.WithLogging(keyHandler.Integrity))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ballotbox API v1"))
	})

	return mux
}
