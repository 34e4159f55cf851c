// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/hearts"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
)

type HeartHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	hearts *hearts.Service
}

func NewHeartHandler(db *sql.DB, cfg cliparse.Config) *HeartHandler {
	pollService := polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose)
	return &HeartHandler{
		db:     db,
		cfg:    cfg,
		hearts: hearts.NewService(db, pollService, cfg.Economy),
	}
}

// IssueChallenge handles POST /houses/{house}/hearts/challenges.
// The challenger votes yay on their own challenge.
func (h *HeartHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.IssueChallengeRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" || req.ChallengeeID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id and challengee_id are required")
		return
	}

	now := requestTime(req.Now)
	challenge, poll, err := h.hearts.IssueChallenge(r.Context(), house.ID, req.ResidentID, req.ChallengeeID,
		req.Value, now, req.Circumstance)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ChallengeResponse{Challenge: challenge, Poll: poll})
}

// GiveKarma handles POST /houses/{house}/hearts/karma. Recipients are the
// residents mentioned as <@id>++ in the text.
func (h *HeartHandler) GiveKarma(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.GiveKarmaRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	recipients := hearts.ParseKarmaRecipients(req.Text)
	karma, err := h.hearts.GiveKarma(r.Context(), house.ID, req.ResidentID, recipients, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.KarmaResponse{Karma: karma})
}

// GetHearts handles GET /houses/{house}/hearts
func (h *HeartHandler) GetHearts(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	balances, err := h.hearts.GetHouseHearts(r.Context(), house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.HeartsResponse{Hearts: balances})
}

// GetResidentHearts handles GET /houses/{house}/residents/{resident}/hearts
func (h *HeartHandler) GetResidentHearts(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	residentID := r.PathValue("resident")
	if err := residentInHouse(r.Context(), h.db, house.ID, residentID); err != nil {
		middleware.DomainError(w, err)
		return
	}

	entries, err := hearts.GetHeartEntries(r.Context(), h.db, residentID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	balance, err := h.hearts.GetHearts(r.Context(), residentID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.HeartEntriesResponse{
		ResidentID: residentID,
		Hearts:     balance,
		Entries:    entries,
	})
}
