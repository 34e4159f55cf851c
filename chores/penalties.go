// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"cmp"
	"context"
	"database/sql"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/hearts"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
	"github.com/dustin/go-humanize"
)

// Stats

// GetChoreStats compares the points a resident earned in [start, end]
// against what they owed for end's month, pro-rated by days worked.
func (s *Service) GetChoreStats(ctx context.Context, q db.Querier, residentID string, start, end time.Time) (models.ChoreStats, error) {
	earned, err := GetAllChorePoints(ctx, q, residentID, start, end)
	if err != nil {
		return models.ChoreStats{}, err
	}
	pct, err := GetWorkingResidentPercentage(ctx, q, residentID, end)
	if err != nil {
		return models.ChoreStats{}, err
	}

	stats := models.ChoreStats{
		ResidentID:    residentID,
		PointsEarned:  earned,
		PointsOwed:    s.cfg.PointsPerResident * pct,
		CompletionPct: 1,
	}
	if stats.PointsOwed > 0 {
		stats.CompletionPct = stats.PointsEarned / stats.PointsOwed
	}
	return stats, nil
}

// GetHouseChoreStats returns stats for every voting resident, most
// complete first.
func (s *Service) GetHouseChoreStats(ctx context.Context, houseID string, start, end time.Time) ([]models.ChoreStats, error) {
	residents, err := admin.GetVotingResidents(ctx, s.db, houseID, end)
	if err != nil {
		return nil, err
	}

	stats := make([]models.ChoreStats, 0, len(residents))
	for _, r := range residents {
		st, err := s.GetChoreStats(ctx, s.db, r.ID, start, end)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	slices.SortStableFunc(stats, func(a, b models.ChoreStats) int {
		return cmp.Compare(b.CompletionPct, a.CompletionPct)
	})
	return stats, nil
}

// Penalties

// CalculatePenalty returns the hearts a resident loses for the month before
// penaltyTime: PenaltyUnit for every full PenaltyIncrement of shortfall. A
// resident without a shortfall gets a negative penalty of one PenaltyUnit.
func (s *Service) CalculatePenalty(ctx context.Context, q db.Querier, residentID string, penaltyTime time.Time) (float64, error) {
	prevMonthEnd := calendar.PrevMonthEnd(penaltyTime)
	stats, err := s.GetChoreStats(ctx, q, residentID, calendar.MonthStart(prevMonthEnd), prevMonthEnd)
	if err != nil {
		return 0, err
	}

	deficiency := stats.PointsOwed - stats.PointsEarned
	if deficiency <= 0 {
		return -s.cfg.PenaltyUnit, nil
	}
	return math.Floor(deficiency/s.cfg.PenaltyIncrement) * s.cfg.PenaltyUnit, nil
}

// AddChorePenalty writes last month's penalty, PenaltyDelay after the month
// starts. Residents without hearts are skipped. The entry is written even
// when it is zero or a reward, so each month is settled exactly once.
func (s *Service) AddChorePenalty(ctx context.Context, houseID, residentID string, now time.Time) ([]models.Heart, error) {
	var penalties []models.Heart
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		heart, ok, err := s.addChorePenalty(ctx, tx, houseID, residentID, now)
		if ok {
			penalties = append(penalties, heart)
		}
		return err
	})
	return penalties, err
}

// AddChorePenalties penalizes every voting resident of the house.
func (s *Service) AddChorePenalties(ctx context.Context, houseID string, now time.Time) (penalties []models.Heart, err error) {
	ctx, span := telemetry.Start(ctx, "chores.AddChorePenalties", houseID)
	defer func() { telemetry.End(span, err) }()

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		residents, err := admin.GetVotingResidents(ctx, tx, houseID, now)
		if err != nil {
			return err
		}
		for _, r := range residents {
			heart, ok, err := s.addChorePenalty(ctx, tx, houseID, r.ID, now)
			if err != nil {
				return err
			}
			if ok {
				penalties = append(penalties, heart)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(penalties) > 0 {
		slog.Info("chore penalties added", "house_id", houseID, "residents", len(penalties))
	}
	return penalties, nil
}

func (s *Service) addChorePenalty(ctx context.Context, q db.Querier, houseID, residentID string, now time.Time) (models.Heart, bool, error) {
	monthStart := calendar.MonthStart(now)
	penaltyTime := monthStart.Add(s.cfg.PenaltyDelay)
	if now.Before(penaltyTime) {
		return models.Heart{}, false, nil
	}

	_, initialised, err := hearts.Balance(ctx, q, residentID, penaltyTime)
	if err != nil || !initialised {
		return models.Heart{}, false, err
	}

	penalty, err := s.CalculatePenalty(ctx, q, residentID, penaltyTime)
	if err != nil {
		return models.Heart{}, false, err
	}

	heart := models.Heart{
		HouseID:     houseID,
		ResidentID:  residentID,
		Kind:        models.HeartPenalty,
		GeneratedAt: penaltyTime,
		Value:       -penalty,
		PeriodStart: &monthStart,
	}
	inserted, err := hearts.Insert(ctx, q, &heart)
	if err != nil || !inserted {
		return models.Heart{}, false, err
	}

	slog.Debug("chore penalty added", "resident_id", residentID, "hearts", humanize.Ftoa(penalty))
	return heart, true, nil
}
