// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/hearts"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
)

type HouseHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	hearts *hearts.Service
}

func NewHouseHandler(db *sql.DB, cfg cliparse.Config) *HouseHandler {
	pollService := polls.NewService(db, cfg.VoterSalt, cfg.Economy.EarlyClose)
	return &HouseHandler{db: db, cfg: cfg, hearts: hearts.NewService(db, pollService, cfg.Economy)}
}

// AddHouse handles POST /houses
func (h *HouseHandler) AddHouse(w http.ResponseWriter, r *http.Request) {
	var req models.AddHouseRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.HouseID == "" {
		req.HouseID = auth.NewID()
	}

	if err := admin.AddHouse(r.Context(), h.db, req.HouseID, req.Metadata); err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("house added", "house_id", req.HouseID)

	middleware.JSONResponse(w, http.StatusCreated, models.AddHouseResponse{
		HouseID:  req.HouseID,
		HouseKey: auth.GenerateHouseKey(req.HouseID, h.cfg.HouseKeySalt),
	})
}

// ActivateResident handles POST /houses/{house}/residents/{resident}/activate.
// Newly activated residents receive their baseline hearts.
func (h *HouseHandler) ActivateResident(w http.ResponseWriter, r *http.Request) {
	h.updateResident(w, r, func(req models.TriggerRequest, houseID, residentID string) ([]models.Heart, error) {
		now := requestTime(req.Now)
		if err := admin.ActivateResident(r.Context(), h.db, houseID, residentID, now); err != nil {
			return nil, err
		}
		return h.hearts.InitialiseResident(r.Context(), houseID, residentID, now)
	})
}

// DeactivateResident handles POST /houses/{house}/residents/{resident}/deactivate
func (h *HouseHandler) DeactivateResident(w http.ResponseWriter, r *http.Request) {
	h.updateResident(w, r, func(_ models.TriggerRequest, houseID, residentID string) ([]models.Heart, error) {
		return nil, admin.DeactivateResident(r.Context(), h.db, houseID, residentID)
	})
}

// ExemptResident handles POST /houses/{house}/residents/{resident}/exempt
func (h *HouseHandler) ExemptResident(w http.ResponseWriter, r *http.Request) {
	h.updateResident(w, r, func(req models.TriggerRequest, houseID, residentID string) ([]models.Heart, error) {
		return nil, admin.ExemptResident(r.Context(), h.db, houseID, residentID, requestTime(req.Now))
	})
}

// UnexemptResident handles POST /houses/{house}/residents/{resident}/unexempt
func (h *HouseHandler) UnexemptResident(w http.ResponseWriter, r *http.Request) {
	h.updateResident(w, r, func(_ models.TriggerRequest, houseID, residentID string) ([]models.Heart, error) {
		return nil, admin.UnexemptResident(r.Context(), h.db, houseID, residentID)
	})
}

func (h *HouseHandler) updateResident(w http.ResponseWriter, r *http.Request, update func(models.TriggerRequest, string, string) ([]models.Heart, error)) {
	ctx := r.Context()
	house, ok := houseFromPath(ctx, w, r, h.db)
	if !ok {
		return
	}
	residentID := r.PathValue("resident")
	if residentID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "resident is required")
		return
	}

	var req models.TriggerRequest
	if err := middleware.ParseOptionalJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Residents cannot be moved between houses through another house's key
	existing, err := admin.GetResident(ctx, h.db, residentID)
	switch {
	case errors.Is(err, models.ErrResidentNotFound):
	case err != nil:
		middleware.DomainError(w, err)
		return
	case existing.HouseID != house.ID:
		middleware.ErrorResponse(w, http.StatusConflict, "resident belongs to another house")
		return
	}

	entries, err := update(req, house.ID, residentID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	resident, err := admin.GetResident(ctx, h.db, residentID)
	if err != nil {
		middleware.DomainError(w, err)
		return
	}

	slog.Info("resident updated", "house_id", house.ID, "resident_id", residentID,
		"active", resident.Active, "exempt", resident.ExemptAt != nil)

	middleware.JSONResponse(w, http.StatusOK, models.ResidentResponse{Resident: resident, Hearts: entries})
}
