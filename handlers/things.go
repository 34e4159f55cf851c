// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
	"github.com/danielhkuo/chorewheel/things"
)

type ThingHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	things *things.Service
}

func NewThingHandler(db *sql.DB, cfg cliparse.Config) *ThingHandler {
	pollService := polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose)
	return &ThingHandler{
		db:     db,
		cfg:    cfg,
		things: things.NewService(db, pollService, cfg.Economy),
	}
}

// AddThing handles POST /houses/{house}/things
func (h *ThingHandler) AddThing(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.AddThingRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Type == "" || req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "type and name are required")
		return
	}
	if req.Value < 0 {
		middleware.DomainError(w, models.ErrInvalidValue)
		return
	}

	thing, err := things.AddThing(r.Context(), h.db, house.ID, req.Type, req.Name, req.Value, req.Metadata)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("thing added", "house_id", house.ID, "thing_id", thing.ID, "type", thing.Type, "name", thing.Name)

	middleware.JSONResponse(w, http.StatusCreated, thing)
}

// GetThings handles GET /houses/{house}/things
func (h *ThingHandler) GetThings(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	list, err := things.GetThings(r.Context(), h.db, house.ID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ThingsResponse{Things: list})
}

// ProposeThing handles POST /houses/{house}/things/proposals.
// The proposer votes yay on their own proposal.
func (h *ThingHandler) ProposeThing(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.CreateThingProposalRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}

	proposal, poll, err := h.things.CreateThingProposal(r.Context(), house.ID, req.ResidentID,
		req.ThingID, req.Type, req.Name, req.Value, req.Metadata, req.Active, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ThingProposalResponse{Proposal: proposal, Poll: poll})
}

// LoadAccount handles POST /houses/{house}/accounts
func (h *ThingHandler) LoadAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	house, ok := houseFromPath(ctx, w, r, h.db)
	if !ok {
		return
	}

	var req models.LoadAccountRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" || req.Account == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id and account are required")
		return
	}
	if err := residentInHouse(ctx, h.db, house.ID, req.ResidentID); err != nil {
		middleware.DomainError(w, err)
		return
	}

	buy, err := h.things.LoadAccount(ctx, house.ID, req.Account, req.ResidentID, req.Value, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, buy)
}

// GetAccounts handles GET /houses/{house}/accounts
func (h *ThingHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	accounts, err := things.GetActiveAccounts(r.Context(), h.db, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.AccountsResponse{Accounts: accounts})
}

// BuyThing handles POST /houses/{house}/buys.
// The buyer votes yay on their own buy.
func (h *ThingHandler) BuyThing(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.BuyThingRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" || req.ThingID == "" || req.Account == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id, thing_id and account are required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	buy, poll, err := h.things.BuyThing(r.Context(), house.ID, req.ThingID, req.ResidentID,
		req.Account, req.Quantity, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ThingBuyResponse{Buy: buy, Poll: poll})
}

// BuySpecialThing handles POST /houses/{house}/buys/special
func (h *ThingHandler) BuySpecialThing(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}

	var req models.BuySpecialThingRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" || req.Account == "" || req.Title == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id, account and title are required")
		return
	}

	buy, poll, err := h.things.BuySpecialThing(r.Context(), house.ID, req.ResidentID, req.Account,
		req.Price, req.Title, req.Details, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.ThingBuyResponse{Buy: buy, Poll: poll})
}

// GetUnfulfilledBuys handles GET /houses/{house}/buys
func (h *ThingHandler) GetUnfulfilledBuys(w http.ResponseWriter, r *http.Request) {
	house, ok := houseFromPath(r.Context(), w, r, h.db)
	if !ok {
		return
	}
	now, err := queryTime(r, "now", time.Now().UTC())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "now must be RFC 3339")
		return
	}

	buys, err := things.GetUnfulfilledThingBuys(r.Context(), h.db, house.ID, now)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ThingBuysResponse{Buys: buys})
}

// FulfillBuy handles POST /houses/{house}/buys/{buy}/fulfill
func (h *ThingHandler) FulfillBuy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	house, ok := houseFromPath(ctx, w, r, h.db)
	if !ok {
		return
	}

	var req models.FulfillThingBuyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.ResidentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident_id is required")
		return
	}
	if err := residentInHouse(ctx, h.db, house.ID, req.ResidentID); err != nil {
		middleware.DomainError(w, err)
		return
	}

	buy, err := things.FulfillThingBuy(ctx, h.db, house.ID, r.PathValue("buy"), req.ResidentID, requestTime(req.Now))
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("buy fulfilled", "house_id", house.ID, "buy_id", buy.ID, "resident_id", req.ResidentID)

	middleware.JSONResponse(w, http.StatusOK, buy)
}
