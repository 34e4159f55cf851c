// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package hearts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/cliparse"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/polls"
	"github.com/danielhkuo/chorewheel/telemetry"
	"github.com/dustin/go-humanize"
)

// initialPeriod marks the one-time baseline credit in the period_start column.
var initialPeriod = time.UnixMilli(0).UTC()

type Service struct {
	db    *sql.DB
	polls *polls.Service
	cfg   cliparse.Economy
}

func NewService(conn *sql.DB, pollService *polls.Service, cfg cliparse.Economy) *Service {
	return &Service{db: conn, polls: pollService, cfg: cfg}
}

// Ledger

// Balance sums a resident's hearts generated up to now. initialised is false
// when the resident has no entries at all.
func Balance(ctx context.Context, q db.Querier, residentID string, now time.Time) (hearts float64, initialised bool, err error) {
	var count int
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(value), 0.0)
		FROM heart
		WHERE resident_id = $1 AND generated_at <= $2
	`, residentID, db.ToMillis(now)).Scan(&count, &hearts)
	if err != nil {
		return 0, false, fmt.Errorf("failed to sum hearts: %w", err)
	}
	return hearts, count > 0, nil
}

// Insert appends a heart. Entries with a PeriodStart are unique per
// resident, kind and period; a duplicate is skipped and reported as false.
func Insert(ctx context.Context, q db.Querier, heart *models.Heart) (bool, error) {
	if heart.ID == "" {
		heart.ID = auth.NewID()
	}
	if heart.Metadata == nil {
		heart.Metadata = map[string]any{}
	}
	raw, err := db.EncodeMetadata(heart.Metadata)
	if err != nil {
		return false, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO heart (id, house_id, resident_id, kind, generated_at, value, period_start, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (resident_id, kind, period_start) DO NOTHING
	`, heart.ID, heart.HouseID, heart.ResidentID, string(heart.Kind), db.ToMillis(heart.GeneratedAt),
		heart.Value, db.ToNullMillis(heart.PeriodStart), raw)
	if err != nil {
		return false, fmt.Errorf("failed to insert heart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert heart: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	metrics.HeartsGenerated.WithLabelValues(string(heart.Kind)).Inc()
	return true, nil
}

// GetHearts returns a resident's balance as of now.
func (s *Service) GetHearts(ctx context.Context, residentID string, now time.Time) (float64, error) {
	hearts, _, err := Balance(ctx, s.db, residentID, now)
	return hearts, err
}

// GetHouseHearts returns the balances of the house's voting residents,
// highest first.
func (s *Service) GetHouseHearts(ctx context.Context, houseID string, now time.Time) ([]models.HeartBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.resident_id, SUM(h.value) AS hearts
		FROM heart h
		JOIN resident r ON r.id = h.resident_id
		WHERE h.house_id = $1 AND h.generated_at <= $2
		  AND r.active = $3 AND r.active_at <= $2
		  AND (r.exempt_at IS NULL OR r.exempt_at > $2)
		GROUP BY h.resident_id
		ORDER BY hearts DESC, h.resident_id
	`, houseID, db.ToMillis(now), true)
	if err != nil {
		return nil, fmt.Errorf("failed to query house hearts: %w", err)
	}
	defer rows.Close()

	balances := []models.HeartBalance{}
	for rows.Next() {
		var b models.HeartBalance
		if err := rows.Scan(&b.ResidentID, &b.Hearts); err != nil {
			return nil, fmt.Errorf("failed to scan hearts: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hearts: %w", err)
	}
	return balances, nil
}

// GetHeartEntries lists a resident's ledger up to now, oldest first.
func GetHeartEntries(ctx context.Context, q db.Querier, residentID string, now time.Time) ([]models.Heart, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, resident_id, kind, generated_at, value, period_start, metadata
		FROM heart
		WHERE resident_id = $1 AND generated_at <= $2
		ORDER BY generated_at, id
	`, residentID, db.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query hearts: %w", err)
	}
	defer rows.Close()

	var entries []models.Heart
	for rows.Next() {
		var h models.Heart
		var kind, raw string
		var generatedAt int64
		var periodStart sql.NullInt64
		if err := rows.Scan(&h.ID, &h.HouseID, &h.ResidentID, &kind, &generatedAt, &h.Value, &periodStart, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan heart: %w", err)
		}
		h.Kind = models.HeartKind(kind)
		h.GeneratedAt = db.FromMillis(generatedAt)
		h.PeriodStart = db.FromNullMillis(periodStart)
		if h.Metadata, err = db.DecodeMetadata(raw); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hearts: %w", err)
	}
	return entries, nil
}

// Regeneration

// InitialiseResident credits the baseline to a resident with no ledger
// entries. It returns nil if the resident already has hearts.
func (s *Service) InitialiseResident(ctx context.Context, houseID, residentID string, now time.Time) (hearts []models.Heart, err error) {
	ctx, span := telemetry.Start(ctx, "hearts.InitialiseResident", houseID)
	defer func() { telemetry.End(span, err) }()

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, initialised, err := Balance(ctx, tx, residentID, now)
		if err != nil || initialised {
			return err
		}

		period := initialPeriod
		heart := models.Heart{
			HouseID:     houseID,
			ResidentID:  residentID,
			Kind:        models.HeartRegen,
			GeneratedAt: now,
			Value:       s.cfg.HeartsBaseline,
			PeriodStart: &period,
		}
		inserted, err := Insert(ctx, tx, &heart)
		if err != nil || !inserted {
			return err
		}
		hearts = append(hearts, heart)
		return nil
	})
	return hearts, err
}

// RegenerateHearts writes the monthly regeneration entry at the start of
// now's month. Uninitialised residents are skipped.
func (s *Service) RegenerateHearts(ctx context.Context, houseID, residentID string, now time.Time) ([]models.Heart, error) {
	var hearts []models.Heart
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		heart, ok, err := s.regenerate(ctx, tx, houseID, residentID, now)
		if ok {
			hearts = append(hearts, heart)
		}
		return err
	})
	return hearts, err
}

// RegenerateHouseHearts regenerates every voting resident of the house.
func (s *Service) RegenerateHouseHearts(ctx context.Context, houseID string, now time.Time) (hearts []models.Heart, err error) {
	ctx, span := telemetry.Start(ctx, "hearts.RegenerateHouseHearts", houseID)
	defer func() { telemetry.End(span, err) }()

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		residents, err := admin.GetVotingResidents(ctx, tx, houseID, now)
		if err != nil {
			return err
		}
		for _, resident := range residents {
			heart, ok, err := s.regenerate(ctx, tx, houseID, resident.ID, now)
			if err != nil {
				return err
			}
			if ok {
				hearts = append(hearts, heart)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(hearts) > 0 {
		slog.Info("hearts regenerated", "house_id", houseID, "residents", len(hearts))
	}
	return hearts, nil
}

func (s *Service) regenerate(ctx context.Context, q db.Querier, houseID, residentID string, now time.Time) (models.Heart, bool, error) {
	regenTime := calendar.MonthStart(now)

	current, initialised, err := Balance(ctx, q, residentID, regenTime)
	if err != nil || !initialised {
		return models.Heart{}, false, err
	}

	heart := models.Heart{
		HouseID:     houseID,
		ResidentID:  residentID,
		Kind:        models.HeartRegen,
		GeneratedAt: regenTime,
		Value:       s.GetRegenAmount(current),
		PeriodStart: &regenTime,
	}
	inserted, err := Insert(ctx, q, &heart)
	if err != nil || !inserted {
		return models.Heart{}, false, err
	}

	slog.Debug("hearts regenerated", "resident_id", residentID,
		"balance", humanize.Ftoa(current), "amount", humanize.Ftoa(heart.Value))
	return heart, true, nil
}

// GetRegenAmount moves a balance toward the baseline by at most the regen
// amount upward or the fade amount downward, never past it.
func (s *Service) GetRegenAmount(current float64) float64 {
	gap := s.cfg.HeartsBaseline - current
	if gap >= 0 {
		return min(s.cfg.HeartsRegenAmount, gap)
	}
	return max(-s.cfg.HeartsFadeAmount, gap)
}
