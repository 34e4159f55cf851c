// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
)

// ResetChorePoints starts the house over at now. Voting residents are
// reactivated at now with their month's points zeroed, and the house claims
// away the value of every chore and special chore. Every entry is valid on
// creation and carries the reason "reset".
func (s *Service) ResetChorePoints(ctx context.Context, houseID string, now time.Time) (claims []models.ChoreClaim, err error) {
	ctx, span := telemetry.Start(ctx, "chores.ResetChorePoints", houseID)
	defer func() { telemetry.End(span, err) }()

	values, err := s.GetUpdatedChoreValues(ctx, houseID, now)
	if err != nil {
		return nil, err
	}

	resetAt := db.FromMillis(db.ToMillis(now))
	valid := true
	newClaim := func(value float64) models.ChoreClaim {
		return models.ChoreClaim{
			ID:         auth.NewID(),
			HouseID:    houseID,
			ClaimedAt:  resetAt,
			Value:      value,
			ResolvedAt: &resetAt,
			Valid:      &valid,
			Metadata:   map[string]any{"reason": "reset"},
		}
	}

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		claims = []models.ChoreClaim{}
		residents, err := admin.GetVotingResidents(ctx, tx, houseID, now)
		if err != nil {
			return err
		}
		for _, r := range residents {
			points, err := GetAllChorePoints(ctx, tx, r.ID, calendar.MonthStart(now), now)
			if err != nil {
				return err
			}
			if err := admin.RestartResident(ctx, tx, r.ID, now); err != nil {
				return err
			}
			if points == 0 {
				continue
			}
			claim := newClaim(-points)
			claim.ClaimedBy = &r.ID
			claims = append(claims, claim)
		}

		for _, v := range values {
			claim := newClaim(v.Value)
			if v.ChoreValueID != "" {
				claim.ChoreValueID = &v.ChoreValueID
			} else {
				claim.ChoreID = &v.ChoreID
			}
			claims = append(claims, claim)
		}

		for _, claim := range claims {
			if err := insertClaim(ctx, tx, claim); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("chore points reset", "house_id", houseID, "claims", len(claims))
	return claims, nil
}
