// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
)

type PollHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	polls *polls.Service
}

func NewPollHandler(db *sql.DB, cfg cliparse.Config) *PollHandler {
	return &PollHandler{
		db:    db,
		cfg:   cfg,
		polls: polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose),
	}
}

// SubmitVote handles POST /polls/{poll}/votes. The last vote a resident
// submits replaces any earlier one.
func (h *PollHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	poll, ok := h.authorizedPoll(w, r)
	if !ok {
		return
	}

	var req models.SubmitVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}
	if !req.Vote.Valid() {
		middleware.DomainError(w, models.ErrInvalidVote)
		return
	}

	if err := h.polls.SubmitVote(r.Context(), poll.ID, req.ResidentID, requestTime(req.Now), req.Vote); err != nil {
		middleware.DomainError(w, err)
		return
	}

	h.writePoll(w, r, poll.ID)
}

// GetPoll handles GET /polls/{poll}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	poll, ok := h.authorizedPoll(w, r)
	if !ok {
		return
	}
	h.writePoll(w, r, poll.ID)
}

// authorizedPoll loads the {poll} path value and checks the caller holds
// the key of the house the poll belongs to
func (h *PollHandler) authorizedPoll(w http.ResponseWriter, r *http.Request) (models.Poll, bool) {
	poll, err := h.polls.Get(r.Context(), h.db, r.PathValue("poll"))
	if err != nil {
		middleware.DomainError(w, err)
		return models.Poll{}, false
	}
	if !middleware.ValidHouseKey(r, poll.HouseID, h.cfg.HouseKeySalt) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid house key")
		return models.Poll{}, false
	}
	return poll, true
}

func (h *PollHandler) writePoll(w http.ResponseWriter, r *http.Request, pollID string) {
	poll, err := h.polls.Get(r.Context(), h.db, pollID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	counts, err := h.polls.ResultCounts(r.Context(), h.db, pollID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.PollResponse{Poll: poll, Counts: counts})
}
