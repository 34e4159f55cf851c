// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package admin keeps house and resident bookkeeping. A voting resident is
// active, was activated at or before now, and is not exempt as of now.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
)

// Houses

// AddHouse inserts a house; adding an existing house is a no-op.
func AddHouse(ctx context.Context, q db.Querier, houseID string, metadata map[string]any) error {
	raw, err := db.EncodeMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO house (id, metadata)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, houseID, raw)
	if err != nil {
		return fmt.Errorf("failed to insert house: %w", err)
	}
	return nil
}

func GetHouse(ctx context.Context, q db.Querier, houseID string) (models.House, error) {
	var house models.House
	var raw string
	var valuedAt sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, metadata, chores_valued_at
		FROM house
		WHERE id = $1
	`, houseID).Scan(&house.ID, &raw, &valuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.House{}, models.ErrHouseNotFound
	}
	if err != nil {
		return models.House{}, fmt.Errorf("failed to query house: %w", err)
	}

	house.ChoresValuedAt = db.FromNullMillis(valuedAt)
	if house.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.House{}, err
	}
	return house, nil
}

// UpdateHouseMetadata merges patch into the house metadata.
func UpdateHouseMetadata(ctx context.Context, q db.Querier, houseID string, patch map[string]any) (models.House, error) {
	house, err := GetHouse(ctx, q, houseID)
	if err != nil {
		return models.House{}, err
	}

	house.Metadata = db.MergeMetadata(house.Metadata, patch)
	raw, err := db.EncodeMetadata(house.Metadata)
	if err != nil {
		return models.House{}, err
	}

	if _, err := q.ExecContext(ctx, `UPDATE house SET metadata = $1 WHERE id = $2`, raw, houseID); err != nil {
		return models.House{}, fmt.Errorf("failed to update house: %w", err)
	}
	return house, nil
}

// Residents

// ActivateResident makes a resident active from activeAt. Residents who are
// already active or exempt are left alone.
func ActivateResident(ctx context.Context, q db.Querier, houseID, residentID string, activeAt time.Time) error {
	resident, err := GetResident(ctx, q, residentID)
	if err != nil && !errors.Is(err, models.ErrResidentNotFound) {
		return err
	}
	if err == nil && (resident.Active || resident.ExemptAt != nil) {
		return nil
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO resident (id, house_id, active, active_at, exempt_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (id) DO UPDATE
		SET house_id = excluded.house_id, active = excluded.active,
		    active_at = excluded.active_at, exempt_at = NULL
	`, residentID, houseID, true, db.ToMillis(activeAt))
	if err != nil {
		return fmt.Errorf("failed to activate resident: %w", err)
	}
	return nil
}

func DeactivateResident(ctx context.Context, q db.Querier, houseID, residentID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO resident (id, house_id, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET house_id = excluded.house_id, active = excluded.active
	`, residentID, houseID, false)
	if err != nil {
		return fmt.Errorf("failed to deactivate resident: %w", err)
	}
	return nil
}

// RestartResident moves an active resident's activation to activeAt and
// clears any exemption, as if they had just moved in.
func RestartResident(ctx context.Context, q db.Querier, residentID string, activeAt time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE resident SET active_at = $1, exempt_at = NULL
		WHERE id = $2 AND active = $3
	`, db.ToMillis(activeAt), residentID, true)
	if err != nil {
		return fmt.Errorf("failed to restart resident: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to restart resident: %w", err)
	} else if n == 0 {
		return models.ErrResidentNotFound
	}
	return nil
}

// ExemptResident exempts a resident from exemptAt. An earlier exemption wins.
func ExemptResident(ctx context.Context, q db.Querier, houseID, residentID string, exemptAt time.Time) error {
	resident, err := GetResident(ctx, q, residentID)
	if err != nil && !errors.Is(err, models.ErrResidentNotFound) {
		return err
	}
	if err == nil && resident.ExemptAt != nil && !resident.ExemptAt.After(exemptAt) {
		return nil
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO resident (id, house_id, exempt_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET house_id = excluded.house_id, exempt_at = excluded.exempt_at
	`, residentID, houseID, db.ToMillis(exemptAt))
	if err != nil {
		return fmt.Errorf("failed to exempt resident: %w", err)
	}
	return nil
}

func UnexemptResident(ctx context.Context, q db.Querier, houseID, residentID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO resident (id, house_id, exempt_at)
		VALUES ($1, $2, NULL)
		ON CONFLICT (id) DO UPDATE
		SET house_id = excluded.house_id, exempt_at = NULL
	`, residentID, houseID)
	if err != nil {
		return fmt.Errorf("failed to unexempt resident: %w", err)
	}
	return nil
}

func GetResident(ctx context.Context, q db.Querier, residentID string) (models.Resident, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, active, active_at, exempt_at
		FROM resident
		WHERE id = $1
	`, residentID)
	if err != nil {
		return models.Resident{}, fmt.Errorf("failed to query resident: %w", err)
	}
	residents, err := scanResidents(rows)
	if err != nil {
		return models.Resident{}, err
	}
	if len(residents) == 0 {
		return models.Resident{}, models.ErrResidentNotFound
	}
	return residents[0], nil
}

// GetResidents returns the active residents of a house.
func GetResidents(ctx context.Context, q db.Querier, houseID string) ([]models.Resident, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, active, active_at, exempt_at
		FROM resident
		WHERE house_id = $1 AND active = $2
		ORDER BY id
	`, houseID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query residents: %w", err)
	}
	return scanResidents(rows)
}

func GetVotingResidents(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.Resident, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, active, active_at, exempt_at
		FROM resident
		WHERE house_id = $1 AND active = $2
		  AND active_at <= $3
		  AND (exempt_at IS NULL OR exempt_at > $3)
		ORDER BY id
	`, houseID, true, db.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query voting residents: %w", err)
	}
	return scanResidents(rows)
}

func CountVotingResidents(ctx context.Context, q db.Querier, houseID string, now time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM resident
		WHERE house_id = $1 AND active = $2
		  AND active_at <= $3
		  AND (exempt_at IS NULL OR exempt_at > $3)
	`, houseID, true, db.ToMillis(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count voting residents: %w", err)
	}
	return count, nil
}

func IsVotingResident(ctx context.Context, q db.Querier, houseID, residentID string, now time.Time) (bool, error) {
	resident, err := GetResident(ctx, q, residentID)
	if errors.Is(err, models.ErrResidentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resident.IsVoting(houseID, now), nil
}

func scanResidents(rows *sql.Rows) ([]models.Resident, error) {
	defer rows.Close()

	var residents []models.Resident
	for rows.Next() {
		var r models.Resident
		var activeAt, exemptAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.HouseID, &r.Active, &activeAt, &exemptAt); err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		r.ActiveAt = db.FromNullMillis(activeAt)
		r.ExemptAt = db.FromNullMillis(exemptAt)
		residents = append(residents, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read residents: %w", err)
	}
	return residents, nil
}
