// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
	"github.com/dustin/go-humanize"
)

// GetChoreValue sums the points emitted to a chore in (start, end].
func GetChoreValue(ctx context.Context, q db.Querier, choreID string, start, end time.Time) (float64, error) {
	var value float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0.0)
		FROM chore_value
		WHERE chore_id = $1 AND valued_at > $2 AND valued_at <= $3
	`, choreID, db.ToMillis(start), db.ToMillis(end)).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to sum chore value: %w", err)
	}
	return value, nil
}

// latestClaimTime returns when the chore was last claimed at or before now,
// ignoring rejected claims and excludedClaimID. It is the zero time if the
// chore was never claimed.
func latestClaimTime(ctx context.Context, q db.Querier, choreID string, now time.Time, excludedClaimID string) (time.Time, error) {
	var latest sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(claimed_at)
		FROM chore_claim
		WHERE chore_id = $1 AND claimed_at <= $2 AND id <> $3
		  AND (valid IS NULL OR valid = $4)
	`, choreID, db.ToMillis(now), excludedClaimID, true).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest claim: %w", err)
	}
	if !latest.Valid {
		return time.UnixMilli(0).UTC(), nil
	}
	return db.FromMillis(latest.Int64), nil
}

// GetCurrentChoreValue returns the points a chore has accrued since its last
// claim. A pending claim holds the value until it is rejected.
func GetCurrentChoreValue(ctx context.Context, q db.Querier, choreID string, now time.Time, excludedClaimID string) (float64, error) {
	since, err := latestClaimTime(ctx, q, choreID, now, excludedClaimID)
	if err != nil {
		return 0, err
	}
	return GetChoreValue(ctx, q, choreID, since, now)
}

// GetCurrentChoreValues returns the current value of every active chore.
func GetCurrentChoreValues(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.CurrentChoreValue, error) {
	chores, err := GetChores(ctx, q, houseID)
	if err != nil {
		return nil, err
	}

	specials, err := GetSpecialChores(ctx, q, houseID, now)
	if err != nil {
		return nil, err
	}

	values := make([]models.CurrentChoreValue, 0, len(chores)+len(specials))
	for _, chore := range chores {
		value, err := GetCurrentChoreValue(ctx, q, chore.ID, now, "")
		if err != nil {
			return nil, err
		}
		values = append(values, models.CurrentChoreValue{ChoreID: chore.ID, Name: chore.Name, Value: value})
	}
	for _, special := range specials {
		values = append(values, models.CurrentChoreValue{ChoreValueID: special.ID, Name: special.Name, Value: special.Value})
	}
	return values, nil
}

// GetPointsDiscount returns the hourly emission withheld in now's month to
// pay for special chores valued since the month began. Each special is
// spread over the hours that were left in the month when it was valued.
func GetPointsDiscount(ctx context.Context, q db.Querier, houseID string, now time.Time) (float64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT valued_at, value
		FROM chore_value
		WHERE house_id = $1 AND chore_id IS NULL AND valued_at >= $2 AND valued_at <= $3
	`, houseID, db.ToMillis(calendar.MonthStart(now)), db.ToMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to query special chore values: %w", err)
	}
	defer rows.Close()

	monthEnd := calendar.NextMonthStart(now)
	discount := 0.0
	for rows.Next() {
		var valuedAt int64
		var value float64
		if err := rows.Scan(&valuedAt, &value); err != nil {
			return 0, fmt.Errorf("failed to scan special chore value: %w", err)
		}
		discount += value / monthEnd.Sub(db.FromMillis(valuedAt)).Hours()
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read special chore values: %w", err)
	}
	return discount, nil
}

// availablePoints returns the points the house emits over hours at now's
// rate. The voting residents' monthly budget, less the special chore
// discount, is scaled by the share of them who are working.
func (s *Service) availablePoints(ctx context.Context, q db.Querier, houseID string, now time.Time, hours float64) (float64, int, error) {
	working, err := GetWorkingResidents(ctx, q, houseID, now)
	if err != nil {
		return 0, 0, err
	}
	voting, err := admin.CountVotingResidents(ctx, q, houseID, now)
	if err != nil {
		return 0, 0, err
	}
	if len(working) == 0 || voting == 0 {
		return 0, 0, nil
	}
	discount, err := GetPointsDiscount(ctx, q, houseID, now)
	if err != nil {
		return 0, 0, err
	}

	perHour := float64(voting) * s.cfg.PointsPerResident * s.cfg.InflationFactor / float64(calendar.HoursInMonth(now))
	workingRatio := float64(len(working)) / float64(voting)
	return (perHour - discount) * workingRatio * hours, len(working), nil
}

// UpdateChoreValues emits points for every whole hour since the house's
// watermark. Calls within the same hour, or that lose the race to advance
// the watermark, emit nothing. So does a month whose special chores have
// used up the budget.
func (s *Service) UpdateChoreValues(ctx context.Context, houseID string, now time.Time) (values []models.ChoreValue, err error) {
	ctx, span := telemetry.Start(ctx, "chores.UpdateChoreValues", houseID)
	defer func() { telemetry.End(span, err) }()

	result := "emitted"
	total := 0.0
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		values, total, result, err = s.updateChoreValues(ctx, tx, houseID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ValueUpdates.WithLabelValues(result).Inc()
	if len(values) == 0 {
		return []models.ChoreValue{}, nil
	}

	metrics.PointsEmitted.Add(total)
	slog.Info("chore values updated",
		"house_id", houseID,
		"chores", len(values),
		"points", humanize.FormatFloat("#,###.##", total),
		"valued_at", values[0].ValuedAt)
	return values, nil
}

func (s *Service) updateChoreValues(ctx context.Context, tx *sql.Tx, houseID string, now time.Time) ([]models.ChoreValue, float64, string, error) {
	updateTime := calendar.TruncateHour(now)

	house, err := admin.GetHouse(ctx, tx, houseID)
	if err != nil {
		return nil, 0, "", err
	}
	last := updateTime.Add(-s.cfg.BootstrapDuration)
	if house.ChoresValuedAt != nil {
		last = *house.ChoresValuedAt
	}

	hours := math.Floor(updateTime.Sub(last).Hours())
	if hours <= 0 {
		return nil, 0, "idle", nil
	}
	intervalScalar := hours / float64(calendar.HoursInMonth(now))

	total, working, err := s.availablePoints(ctx, tx, houseID, now, hours)
	if err != nil {
		return nil, 0, "", err
	}
	if working == 0 {
		return nil, 0, "no_residents", nil
	}
	if total <= 0 {
		return nil, 0, "exhausted", nil
	}

	rankings, err := s.currentChoreRankings(ctx, tx, houseID, now)
	if err != nil {
		return nil, 0, "", err
	}
	if len(rankings) == 0 {
		return nil, 0, "no_chores", nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE house SET chores_valued_at = $1
		WHERE id = $2 AND (chores_valued_at IS NULL OR chores_valued_at < $1)
	`, db.ToMillis(updateTime), houseID)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to advance watermark: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, 0, "", fmt.Errorf("failed to advance watermark: %w", err)
	} else if n == 0 {
		return nil, 0, "lost_race", nil
	}

	values := make([]models.ChoreValue, 0, len(rankings))
	for _, r := range rankings {
		value := models.ChoreValue{
			ID:       auth.NewID(),
			HouseID:  houseID,
			ChoreID:  r.ID,
			ValuedAt: updateTime,
			Value:    total * r.Ranking,
			Metadata: models.ChoreValueMetadata{
				Ranking:           r.Ranking,
				EligibleResidents: working,
				IntervalScalar:    intervalScalar,
			},
		}
		raw, err := json.Marshal(value.Metadata)
		if err != nil {
			return nil, 0, "", fmt.Errorf("failed to encode chore value metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chore_value (id, house_id, chore_id, valued_at, value, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, value.ID, houseID, value.ChoreID, db.ToMillis(updateTime), value.Value, string(raw))
		if err != nil {
			return nil, 0, "", fmt.Errorf("failed to insert chore value: %w", err)
		}
		values = append(values, value)
	}
	return values, total, "emitted", nil
}

// GetUpdatedChoreValues reads the current values, runs an update, and folds
// the new emissions in without reading them back. Ping marks a value that
// crossed a multiple of the ping interval. Values are sorted highest first.
func (s *Service) GetUpdatedChoreValues(ctx context.Context, houseID string, now time.Time) ([]models.CurrentChoreValue, error) {
	current, err := GetCurrentChoreValues(ctx, s.db, houseID, now)
	if err != nil {
		return nil, err
	}
	updates, err := s.UpdateChoreValues(ctx, houseID, now)
	if err != nil {
		return nil, err
	}

	added := make(map[string]float64, len(updates))
	for _, u := range updates {
		added[u.ChoreID] += u.Value
	}
	for i := range current {
		prev := current[i].Value
		current[i].Value += added[current[i].ChoreID]
		current[i].Ping = s.crossesPing(prev, current[i].Value)
	}

	slices.SortStableFunc(current, func(a, b models.CurrentChoreValue) int {
		return cmp.Compare(b.Value, a.Value)
	})
	return current, nil
}

func (s *Service) crossesPing(prev, next float64) bool {
	if s.cfg.PingInterval <= 0 {
		return false
	}
	return math.Trunc(prev/s.cfg.PingInterval) < math.Trunc(next/s.cfg.PingInterval)
}
