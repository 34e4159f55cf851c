// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package things

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

const thingColumns = `id, house_id, type, name, value, metadata, active`

// AddThing creates a thing, or reactivates and updates the house's thing
// with the same type and name.
func AddThing(ctx context.Context, q db.Querier, houseID, thingType, name string, value float64, metadata map[string]any) (models.Thing, error) {
	raw, err := db.EncodeMetadata(metadata)
	if err != nil {
		return models.Thing{}, err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO thing (`+thingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (house_id, type, name) DO UPDATE
		SET value = excluded.value, metadata = excluded.metadata, active = excluded.active
	`, auth.NewID(), houseID, thingType, name, value, raw, true)
	if err != nil {
		return models.Thing{}, fmt.Errorf("failed to insert thing: %w", err)
	}

	return scanThing(q.QueryRowContext(ctx, `
		SELECT `+thingColumns+`
		FROM thing
		WHERE house_id = $1 AND type = $2 AND name = $3
	`, houseID, thingType, name))
}

// EditThing overwrites a thing. Editing with active false removes it from
// the catalogue.
func EditThing(ctx context.Context, q db.Querier, thingID, thingType, name string, value float64, metadata map[string]any, active bool) (models.Thing, error) {
	raw, err := db.EncodeMetadata(metadata)
	if err != nil {
		return models.Thing{}, err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE thing SET type = $1, name = $2, value = $3, metadata = $4, active = $5
		WHERE id = $6
	`, thingType, name, value, raw, active, thingID)
	if err != nil {
		return models.Thing{}, fmt.Errorf("failed to update thing: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Thing{}, fmt.Errorf("failed to update thing: %w", err)
	} else if n == 0 {
		return models.Thing{}, models.ErrThingNotFound
	}

	return GetThing(ctx, q, thingID)
}

func GetThing(ctx context.Context, q db.Querier, thingID string) (models.Thing, error) {
	return scanThing(q.QueryRowContext(ctx, `
		SELECT `+thingColumns+`
		FROM thing
		WHERE id = $1
	`, thingID))
}

// GetThings lists the house's active things by type and name.
func GetThings(ctx context.Context, q db.Querier, houseID string) ([]models.Thing, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+thingColumns+`
		FROM thing
		WHERE house_id = $1 AND active = $2
		ORDER BY type, name
	`, houseID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query things: %w", err)
	}
	defer rows.Close()

	things := []models.Thing{}
	for rows.Next() {
		thing, err := scanThing(rows)
		if err != nil {
			return nil, err
		}
		things = append(things, thing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read things: %w", err)
	}
	return things, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThing(row scanner) (models.Thing, error) {
	var thing models.Thing
	var raw string
	err := row.Scan(&thing.ID, &thing.HouseID, &thing.Type, &thing.Name, &thing.Value, &raw, &thing.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thing{}, models.ErrThingNotFound
	}
	if err != nil {
		return models.Thing{}, fmt.Errorf("failed to scan thing: %w", err)
	}
	if thing.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.Thing{}, err
	}
	return thing, nil
}
