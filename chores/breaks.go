// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
)

// AddChoreBreak excuses a resident from chores in [start, end).
func AddChoreBreak(ctx context.Context, q db.Querier, houseID, residentID string, start, end time.Time, circumstance string) (models.ChoreBreak, error) {
	if !end.After(start) {
		return models.ChoreBreak{}, models.ErrInvalidBreak
	}

	choreBreak := models.ChoreBreak{
		ID:           auth.NewID(),
		HouseID:      houseID,
		ResidentID:   residentID,
		StartDate:    db.FromMillis(db.ToMillis(start)),
		EndDate:      db.FromMillis(db.ToMillis(end)),
		Circumstance: circumstance,
	}
	raw, err := db.EncodeMetadata(map[string]any{"circumstance": circumstance})
	if err != nil {
		return models.ChoreBreak{}, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO chore_break (id, house_id, resident_id, start_date, end_date, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, choreBreak.ID, houseID, residentID, db.ToMillis(start), db.ToMillis(end), raw)
	if err != nil {
		return models.ChoreBreak{}, fmt.Errorf("failed to insert chore break: %w", err)
	}
	return choreBreak, nil
}

// TakeChoreBreak records a break lasting at least the configured number of
// whole days.
func (s *Service) TakeChoreBreak(ctx context.Context, houseID, residentID string, start, end time.Time, circumstance string) (models.ChoreBreak, error) {
	if !end.After(start) {
		return models.ChoreBreak{}, models.ErrInvalidBreak
	}
	if days := int(end.Sub(start) / (24 * time.Hour)); days < s.cfg.BreakMinDays {
		return models.ChoreBreak{}, fmt.Errorf("%w: %d of %d days", models.ErrBreakTooShort, days, s.cfg.BreakMinDays)
	}
	return AddChoreBreak(ctx, s.db, houseID, residentID, start, end, circumstance)
}

func DeleteChoreBreak(ctx context.Context, q db.Querier, houseID, breakID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM chore_break WHERE id = $1 AND house_id = $2`, breakID, houseID); err != nil {
		return fmt.Errorf("failed to delete chore break: %w", err)
	}
	return nil
}

// GetChoreBreaks returns the breaks in effect at now for residents who have
// been activated.
func GetChoreBreaks(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.ChoreBreak, error) {
	return queryChoreBreaks(ctx, q, `
		SELECT b.id, b.house_id, b.resident_id, b.start_date, b.end_date, b.metadata
		FROM chore_break b
		JOIN resident r ON r.id = b.resident_id
		WHERE b.house_id = $1 AND b.start_date <= $2 AND b.end_date > $2
		  AND r.active_at <= $2
		ORDER BY b.start_date, b.id
	`, houseID, db.ToMillis(now))
}

func queryChoreBreaks(ctx context.Context, q db.Querier, query string, args ...any) ([]models.ChoreBreak, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chore breaks: %w", err)
	}
	defer rows.Close()

	breaks := []models.ChoreBreak{}
	for rows.Next() {
		var b models.ChoreBreak
		var start, end int64
		var raw string
		if err := rows.Scan(&b.ID, &b.HouseID, &b.ResidentID, &start, &end, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan chore break: %w", err)
		}
		b.StartDate = db.FromMillis(start)
		b.EndDate = db.FromMillis(end)
		metadata, err := db.DecodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		b.Circumstance, _ = metadata["circumstance"].(string)
		breaks = append(breaks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chore breaks: %w", err)
	}
	return breaks, nil
}

// GetWorkingResidents returns the voting residents who are not on break.
func GetWorkingResidents(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.Resident, error) {
	residents, err := admin.GetVotingResidents(ctx, q, houseID, now)
	if err != nil {
		return nil, err
	}
	breaks, err := GetChoreBreaks(ctx, q, houseID, now)
	if err != nil {
		return nil, err
	}

	onBreak := make(map[string]bool, len(breaks))
	for _, b := range breaks {
		onBreak[b.ResidentID] = true
	}
	working := make([]models.Resident, 0, len(residents))
	for _, r := range residents {
		if !onBreak[r.ID] {
			working = append(working, r)
		}
	}
	return working, nil
}

// GetWorkingResidentPercentage returns the share of days in now's month the
// resident is not on break. Days before the resident's activation count as
// a break. Unknown or never-activated residents owe nothing.
func GetWorkingResidentPercentage(ctx context.Context, q db.Querier, residentID string, now time.Time) (float64, error) {
	resident, err := admin.GetResident(ctx, q, residentID)
	if errors.Is(err, models.ErrResidentNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if resident.ActiveAt == nil {
		return 0, nil
	}

	monthStart := calendar.MonthStart(now)
	nextMonthStart := calendar.NextMonthStart(now)

	breaks, err := queryChoreBreaks(ctx, q, `
		SELECT id, house_id, resident_id, start_date, end_date, metadata
		FROM chore_break
		WHERE resident_id = $1 AND start_date < $2 AND end_date > $3
	`, residentID, db.ToMillis(nextMonthStart), db.ToMillis(monthStart))
	if err != nil {
		return 0, err
	}
	if monthStart.Before(*resident.ActiveAt) {
		breaks = append(breaks, models.ChoreBreak{StartDate: monthStart, EndDate: calendar.DayStart(*resident.ActiveAt)})
	}

	days := calendar.DaysInMonth(now)
	offDays := make([]bool, days)
	for _, b := range breaks {
		start, end := b.StartDate, b.EndDate
		if start.Before(monthStart) {
			start = monthStart
		}
		if end.After(nextMonthStart) {
			end = nextMonthStart
		}
		for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
			offDays[day.Day()-1] = true
		}
	}

	working := 0
	for _, off := range offDays {
		if !off {
			working++
		}
	}
	return float64(working) / float64(days), nil
}
