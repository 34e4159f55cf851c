// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/chorewheel/chores"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/hearts"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
	"github.com/danielhkuo/chorewheel/things"
)

// EconomyHandler serves the periodic triggers a scheduler calls for each
// house. Both are safe to call as often as wanted.
type EconomyHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	chores *chores.Service
	hearts *hearts.Service
	things *things.Service
}

func NewEconomyHandler(db *sql.DB, cfg cliparse.Config) *EconomyHandler {
	pollService := polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose)
	return &EconomyHandler{
		db:     db,
		cfg:    cfg,
		chores: chores.NewService(db, pollService, cfg.Economy),
		hearts: hearts.NewService(db, pollService, cfg.Economy),
		things: things.NewService(db, pollService, cfg.Economy),
	}
}

// Resolve handles POST /houses/{house}/resolve: every claim, proposal,
// challenge and buy whose poll has closed is resolved
func (h *EconomyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	house, ok := houseFromPath(ctx, w, r, h.db)
	if !ok {
		return
	}

	var req models.TriggerRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	now := requestTime(req.Now)

	claims, err := h.chores.ResolveChoreClaims(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	proposals, err := h.chores.ResolveChoreProposals(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	challenges, err := h.hearts.ResolveChallenges(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	buys, err := h.things.ResolveThingBuys(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	thingProposals, err := h.things.ResolveThingProposals(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("house resolved", "house_id", house.ID,
		"claims", len(claims), "proposals", len(proposals), "challenges", len(challenges),
		"buys", len(buys), "thing_proposals", len(thingProposals))

	middleware.JSONResponse(w, http.StatusOK, models.ResolveResponse{
		Claims:         claims,
		Proposals:      proposals,
		Challenges:     challenges,
		Buys:           buys,
		ThingProposals: thingProposals,
	})
}

// Monthly handles POST /houses/{house}/monthly: regeneration, karma hearts
// and chore penalties for the month. Each is written at most once a month.
func (h *EconomyHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	house, ok := houseFromPath(ctx, w, r, h.db)
	if !ok {
		return
	}

	var req models.TriggerRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	now := requestTime(req.Now)

	regenerated, err := h.hearts.RegenerateHouseHearts(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	karma, err := h.hearts.GenerateKarmaHearts(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	penalties, err := h.chores.AddChorePenalties(ctx, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.MonthlyResponse{
		Regenerated: nonNil(regenerated),
		Karma:       nonNil(karma),
		Penalties:   nonNil(penalties),
	})
}

func nonNil(entries []models.Heart) []models.Heart {
	if entries == nil {
		return []models.Heart{}
	}
	return entries
}
