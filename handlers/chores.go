// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/chores"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
)

type ChoreHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	chores *chores.Service
}

func NewChoreHandler(db *sql.DB, cfg cliparse.Config) *ChoreHandler {
	pollService := polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose)
	return &ChoreHandler{
		db:     db,
		cfg:    cfg,
		chores: chores.NewService(db, pollService, cfg.Economy),
	}
}

// AddChore handles POST /houses/{house}/chores
func (h *ChoreHandler) AddChore(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.AddChoreRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	chore, err := chores.AddChore(r.Context(), h.db, house.ID, req.Name, req.Metadata)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("chore added", "house_id", house.ID, "chore_id", chore.ID, "name", chore.Name)

	middleware.JSONResponse(w, http.StatusCreated, chore)
}

// GetChores handles GET /houses/{house}/chores
func (h *ChoreHandler) GetChores(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	list, err := chores.GetChores(r.Context(), h.db, house.ID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoresResponse{Chores: list})
}

// SetPreferences handles PUT /houses/{house}/chores/preferences
func (h *ChoreHandler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.SetChorePreferencesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	prefs, err := h.chores.SetChorePreferences(r.Context(), house.ID, req.ResidentID, req.Preferences, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChorePreferencesResponse{Preferences: prefs})
}

// GetRankings handles GET /houses/{house}/chores/rankings
func (h *ChoreHandler) GetRankings(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	rankings, err := h.chores.GetCurrentChoreRankings(r.Context(), house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoreRankingsResponse{Rankings: rankings})
}

// PreviewRankings handles POST /houses/{house}/chores/rankings/preview.
// Nothing is stored.
func (h *ChoreHandler) PreviewRankings(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.SetChorePreferencesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	rankings, err := h.chores.GetProposedChoreRankings(r.Context(), house.ID, req.ResidentID, req.Preferences, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoreRankingsResponse{Rankings: rankings})
}

// UpdateValues handles POST /houses/{house}/chores/values
func (h *ChoreHandler) UpdateValues(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.TriggerRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	values, err := h.chores.GetUpdatedChoreValues(r.Context(), house.ID, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoreValuesResponse{ChoreValues: values})
}

// ClaimChore handles POST /houses/{house}/chores/{chore}/claims.
// The claimant votes yay on their own claim.
func (h *ChoreHandler) ClaimChore(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.ClaimChoreRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	now := requestTime(req.Now)
	claim, poll, err := h.chores.ClaimChore(r.Context(), house.ID, r.PathValue("chore"), req.ResidentID, now, req.TimeSpent)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ClaimChoreResponse{Claim: claim, Poll: poll})
}

// ProposeChore handles POST /houses/{house}/chores/proposals.
// The proposer votes yay on their own proposal.
func (h *ChoreHandler) ProposeChore(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.CreateChoreProposalRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	now := requestTime(req.Now)
	proposal, poll, err := h.chores.CreateChoreProposal(r.Context(), house.ID, req.ResidentID,
		req.ChoreID, req.Name, req.Metadata, req.Active, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ChoreProposalResponse{Proposal: proposal, Poll: poll})
}

// ProposeSpecialChore handles POST /houses/{house}/specials/proposals.
// The proposer votes yay on their own proposal.
func (h *ChoreHandler) ProposeSpecialChore(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.CreateSpecialChoreProposalRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	proposal, poll, err := h.chores.CreateSpecialChoreProposal(r.Context(), house.ID, req.ResidentID,
		req.Name, req.Description, req.Value, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ChoreProposalResponse{Proposal: proposal, Poll: poll})
}

// ClaimSpecialChore handles POST /houses/{house}/specials/{special}/claims
func (h *ChoreHandler) ClaimSpecialChore(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.ClaimChoreRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	claim, poll, err := h.chores.ClaimSpecialChore(r.Context(), house.ID, r.PathValue("special"),
		req.ResidentID, requestTime(req.Now), req.TimeSpent)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ClaimChoreResponse{Claim: claim, Poll: poll})
}

// ResetPoints handles POST /houses/{house}/chores/reset
func (h *ChoreHandler) ResetPoints(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.TriggerRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	claims, err := h.chores.ResetChorePoints(r.Context(), house.ID, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ResetResponse{Claims: claims})
}

// AddBreak handles POST /houses/{house}/breaks. Breaks shorter than the
// configured minimum are refused.
func (h *ChoreHandler) AddBreak(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.AddChoreBreakRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := residentInHouse(r.Context(), h.db, house.ID, req.ResidentID); err != nil {
		middleware.DomainError(w, err)
		return
	}

	choreBreak, err := h.chores.TakeChoreBreak(r.Context(), house.ID, req.ResidentID,
		req.StartDate.UTC(), req.EndDate.UTC(), req.Circumstance)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("chore break added", "house_id", house.ID, "resident_id", req.ResidentID,
		"start", choreBreak.StartDate, "end", choreBreak.EndDate)

	middleware.JSONResponse(w, http.StatusCreated, choreBreak)
}

// GetBreaks handles GET /houses/{house}/breaks
func (h *ChoreHandler) GetBreaks(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	breaks, err := chores.GetChoreBreaks(r.Context(), h.db, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoreBreaksResponse{Breaks: breaks})
}

// DeleteBreak handles DELETE /houses/{house}/breaks/{break}
func (h *ChoreHandler) DeleteBreak(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	if err := chores.DeleteChoreBreak(r.Context(), h.db, house.ID, r.PathValue("break")); err != nil {
		middleware.DomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Gift handles POST /houses/{house}/gifts
func (h *ChoreHandler) Gift(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.GiftChorePointsRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	transfers, err := h.chores.GiftChorePoints(r.Context(), house.ID, req.ResidentID, req.RecipientID, req.Value, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.GiftResponse{Transfers: transfers})
}

// GetStats handles GET /houses/{house}/chores/stats. The range defaults to
// the month to date.
func (h *ChoreHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	end, err := queryTime(r, "end", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "end must be RFC 3339")
		return
	}
	start, err := queryTime(r, "start", calendar.MonthStart(end))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "start must be RFC 3339")
		return
	}

	stats, err := h.chores.GetHouseChoreStats(r.Context(), house.ID, start, end)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ChoreStatsResponse{Stats: stats})
}
