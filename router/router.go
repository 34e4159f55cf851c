// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/handlers"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	houseHandler := handlers.NewHouseHandler(db, cfg)
	choreHandler := handlers.NewChoreHandler(db, cfg)
	heartHandler := handlers.NewHeartHandler(db, cfg)
	economyHandler := handlers.NewEconomyHandler(db, cfg)
	pollHandler := handlers.NewPollHandler(db, cfg)
	thingHandler := handlers.NewThingHandler(db, cfg)

	// house wraps a handler with logging and the house key check
	house := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireHouseKey(cfg.HouseKeySalt, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Houses and residents
	mux.HandleFunc("POST /houses", middleware.WithLogging(houseHandler.AddHouse))
	mux.HandleFunc("POST /houses/{house}/residents/{resident}/activate", house(houseHandler.ActivateResident))
	mux.HandleFunc("POST /houses/{house}/residents/{resident}/deactivate", house(houseHandler.DeactivateResident))
	mux.HandleFunc("POST /houses/{house}/residents/{resident}/exempt", house(houseHandler.ExemptResident))
	mux.HandleFunc("POST /houses/{house}/residents/{resident}/unexempt", house(houseHandler.UnexemptResident))
	mux.HandleFunc("GET /houses/{house}/residents/{resident}/hearts", house(heartHandler.GetResidentHearts))

	// Chores
	mux.HandleFunc("GET /houses/{house}/chores", house(choreHandler.GetChores))
	mux.HandleFunc("POST /houses/{house}/chores", house(choreHandler.AddChore))
	mux.HandleFunc("PUT /houses/{house}/chores/preferences", house(choreHandler.SetPreferences))
	mux.HandleFunc("GET /houses/{house}/chores/rankings", house(choreHandler.GetRankings))
	mux.HandleFunc("POST /houses/{house}/chores/rankings/preview", house(choreHandler.PreviewRankings))
	mux.HandleFunc("POST /houses/{house}/chores/values", house(choreHandler.UpdateValues))
	mux.HandleFunc("GET /houses/{house}/chores/stats", house(choreHandler.GetStats))
	mux.HandleFunc("POST /houses/{house}/chores/{chore}/claims", house(choreHandler.ClaimChore))
	mux.HandleFunc("POST /houses/{house}/chores/proposals", house(choreHandler.ProposeChore))
	mux.HandleFunc("POST /houses/{house}/chores/reset", house(choreHandler.ResetPoints))
	mux.HandleFunc("POST /houses/{house}/specials/proposals", house(choreHandler.ProposeSpecialChore))
	mux.HandleFunc("POST /houses/{house}/specials/{special}/claims", house(choreHandler.ClaimSpecialChore))
	mux.HandleFunc("GET /houses/{house}/breaks", house(choreHandler.GetBreaks))
	mux.HandleFunc("POST /houses/{house}/breaks", house(choreHandler.AddBreak))
	mux.HandleFunc("DELETE /houses/{house}/breaks/{break}", house(choreHandler.DeleteBreak))
	mux.HandleFunc("POST /houses/{house}/gifts", house(choreHandler.Gift))

	// Hearts
	mux.HandleFunc("GET /houses/{house}/hearts", house(heartHandler.GetHearts))
	mux.HandleFunc("POST /houses/{house}/hearts/challenges", house(heartHandler.IssueChallenge))
	mux.HandleFunc("POST /houses/{house}/hearts/karma", house(heartHandler.GiveKarma))

	// Things
	mux.HandleFunc("GET /houses/{house}/things", house(thingHandler.GetThings))
	mux.HandleFunc("POST /houses/{house}/things", house(thingHandler.AddThing))
	mux.HandleFunc("POST /houses/{house}/things/proposals", house(thingHandler.ProposeThing))
	mux.HandleFunc("GET /houses/{house}/accounts", house(thingHandler.GetAccounts))
	mux.HandleFunc("POST /houses/{house}/accounts", house(thingHandler.LoadAccount))
	mux.HandleFunc("GET /houses/{house}/buys", house(thingHandler.GetUnfulfilledBuys))
	mux.HandleFunc("POST /houses/{house}/buys", house(thingHandler.BuyThing))
	mux.HandleFunc("POST /houses/{house}/buys/special", house(thingHandler.BuySpecialThing))
	mux.HandleFunc("POST /houses/{house}/buys/{buy}/fulfill", house(thingHandler.FulfillBuy))

	// Scheduled triggers
	mux.HandleFunc("POST /houses/{house}/resolve", house(economyHandler.Resolve))
	mux.HandleFunc("POST /houses/{house}/monthly", house(economyHandler.Monthly))

	// Polls check the key of the poll's house themselves
	mux.HandleFunc("GET /polls/{poll}", middleware.WithLogging(pollHandler.GetPoll))
	mux.HandleFunc("POST /polls/{poll}/votes", middleware.WithLogging(pollHandler.SubmitVote))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chorewheel API v1"))
	})

	return mux
}
