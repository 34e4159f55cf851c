// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
)

type Service struct {
	db    *sql.DB
	polls *polls.Service
	cfg   cliparse.Economy
}

func NewService(conn *sql.DB, pollService *polls.Service, cfg cliparse.Economy) *Service {
	return &Service{db: conn, polls: pollService, cfg: cfg}
}

// AddChore creates a chore, or reactivates and updates the house's chore
// with the same name.
func AddChore(ctx context.Context, q db.Querier, houseID, name string, metadata map[string]any) (models.Chore, error) {
	raw, err := db.EncodeMetadata(metadata)
	if err != nil {
		return models.Chore{}, err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO chore (id, house_id, name, metadata, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (house_id, name) DO UPDATE
		SET metadata = excluded.metadata, active = excluded.active
	`, auth.NewID(), houseID, name, raw, true)
	if err != nil {
		return models.Chore{}, fmt.Errorf("failed to insert chore: %w", err)
	}

	return scanChore(q.QueryRowContext(ctx, `
		SELECT id, house_id, name, metadata, active
		FROM chore
		WHERE house_id = $1 AND name = $2
	`, houseID, name))
}

// EditChore overwrites a chore's name, metadata and active flag. Editing
// with active false deletes the chore.
func EditChore(ctx context.Context, q db.Querier, choreID, name string, metadata map[string]any, active bool) (models.Chore, error) {
	raw, err := db.EncodeMetadata(metadata)
	if err != nil {
		return models.Chore{}, err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE chore SET name = $1, metadata = $2, active = $3
		WHERE id = $4
	`, name, raw, active, choreID)
	if err != nil {
		return models.Chore{}, fmt.Errorf("failed to update chore: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Chore{}, fmt.Errorf("failed to update chore: %w", err)
	} else if n == 0 {
		return models.Chore{}, models.ErrChoreNotFound
	}

	return GetChore(ctx, q, choreID)
}

// DeleteChore deactivates a chore. Its history is kept.
func DeleteChore(ctx context.Context, q db.Querier, choreID string) error {
	chore, err := GetChore(ctx, q, choreID)
	if err != nil {
		return err
	}
	_, err = EditChore(ctx, q, choreID, chore.Name, chore.Metadata, false)
	return err
}

func GetChore(ctx context.Context, q db.Querier, choreID string) (models.Chore, error) {
	return scanChore(q.QueryRowContext(ctx, `
		SELECT id, house_id, name, metadata, active
		FROM chore
		WHERE id = $1
	`, choreID))
}

// GetChores returns the active chores of a house.
func GetChores(ctx context.Context, q db.Querier, houseID string) ([]models.Chore, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, name, metadata, active
		FROM chore
		WHERE house_id = $1 AND active = $2
		ORDER BY name, id
	`, houseID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query chores: %w", err)
	}
	defer rows.Close()

	chores := []models.Chore{}
	for rows.Next() {
		chore, err := scanChore(rows)
		if err != nil {
			return nil, err
		}
		chores = append(chores, chore)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chores: %w", err)
	}
	return chores, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChore(row scanner) (models.Chore, error) {
	var chore models.Chore
	var raw string
	err := row.Scan(&chore.ID, &chore.HouseID, &chore.Name, &raw, &chore.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chore{}, models.ErrChoreNotFound
	}
	if err != nil {
		return models.Chore{}, fmt.Errorf("failed to scan chore: %w", err)
	}
	if chore.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.Chore{}, err
	}
	return chore, nil
}
