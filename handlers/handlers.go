// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/middleware"
	"github.com/danielhkuo/chorewheel/models"
)

// requestTime returns the replay time from a request body, or the server
// clock when none was given
func requestTime(now *time.Time) time.Time {
	if now != nil {
		return now.UTC()
	}
	return time.Now().UTC()
}

// queryTime reads an optional RFC 3339 query parameter
func queryTime(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// houseFromPath loads the {house} path value, writing a 404 if it is missing
func houseFromPath(ctx context.Context, w http.ResponseWriter, r *http.Request, db *sql.DB) (models.House, bool) {
	house, err := admin.GetHouse(ctx, db, r.PathValue("house"))
	if err != nil {
		middleware.DomainError(w, err)
		return models.House{}, false
	}
	return house, true
}

// residentInHouse checks that residentID belongs to houseID
func residentInHouse(ctx context.Context, db *sql.DB, houseID, residentID string) error {
	resident, err := admin.GetResident(ctx, db, residentID)
	if err != nil {
		return err
	}
	if resident.HouseID != houseID {
		return models.ErrResidentNotFound
	}
	return nil
}
