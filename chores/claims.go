// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
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

const claimColumns = `id, house_id, chore_id, chore_value_id, claimed_by, claimed_at, value, poll_id, resolved_at, valid, metadata`

// ClaimChore snapshots the chore's accrued value into a claim and opens a
// poll to verify it, with the claimant's yay already cast. Larger claims
// need more votes.
func (s *Service) ClaimChore(ctx context.Context, houseID, choreID, residentID string, now time.Time, timeSpent int) (claim models.ChoreClaim, poll models.Poll, err error) {
	ctx, span := telemetry.Start(ctx, "chores.ClaimChore", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		chore, err := GetChore(ctx, tx, choreID)
		if err != nil {
			return err
		}
		if chore.HouseID != houseID || !chore.Active {
			return models.ErrChoreNotFound
		}

		voting, err := admin.IsVotingResident(ctx, tx, houseID, residentID, now)
		if err != nil {
			return err
		}
		if !voting {
			return models.ErrInvalidVoter
		}

		value, err := GetCurrentChoreValue(ctx, tx, choreID, now, "")
		if err != nil {
			return err
		}
		if value <= 0 {
			return models.ErrZeroValueClaim
		}

		poll, err = s.polls.Create(ctx, tx, houseID, now, s.cfg.ChoresPollLength, s.claimMinVotes(value))
		if err != nil {
			return err
		}

		claim = models.ChoreClaim{
			ID:        auth.NewID(),
			HouseID:   houseID,
			ChoreID:   &choreID,
			ClaimedBy: &residentID,
			ClaimedAt: poll.StartTime,
			Value:     value,
			PollID:    &poll.ID,
			Metadata:  map[string]any{"time_spent": timeSpent},
		}
		if err := insertClaim(ctx, tx, claim); err != nil {
			return err
		}
		closedEarly, err = s.polls.RecordOpenerYay(ctx, tx, &poll, residentID, now)
		return err
	})
	if err != nil {
		return models.ChoreClaim{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("chore claimed", "house_id", houseID, "chore_id", choreID,
		"resident_id", residentID, "value", humanize.FormatFloat("#,###.##", claim.Value))
	return claim, poll, nil
}

// claimMinVotes is the quorum of a claim worth value
func (s *Service) claimMinVotes(value float64) int {
	if value >= s.cfg.ChoreMinVotesThreshold {
		return s.cfg.ChoresMinVotes
	}
	return 1
}

func insertClaim(ctx context.Context, q db.Querier, claim models.ChoreClaim) error {
	raw, err := db.EncodeMetadata(claim.Metadata)
	if err != nil {
		return err
	}

	var valid sql.NullBool
	if claim.Valid != nil {
		valid = sql.NullBool{Bool: *claim.Valid, Valid: true}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO chore_claim (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, claim.ID, claim.HouseID, db.ToNullString(claim.ChoreID), db.ToNullString(claim.ChoreValueID), db.ToNullString(claim.ClaimedBy),
		db.ToMillis(claim.ClaimedAt), claim.Value, db.ToNullString(claim.PollID),
		db.ToNullMillis(claim.ResolvedAt), valid, raw)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func GetChoreClaim(ctx context.Context, q db.Querier, claimID string) (models.ChoreClaim, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+claimColumns+` FROM chore_claim WHERE id = $1`, claimID)
	if err != nil {
		return models.ChoreClaim{}, fmt.Errorf("failed to query claim: %w", err)
	}
	claims, err := scanClaims(rows)
	if err != nil {
		return models.ChoreClaim{}, err
	}
	if len(claims) == 0 {
		return models.ChoreClaim{}, models.ErrClaimNotFound
	}
	return claims[0], nil
}

// GetChoreClaims lists a resident's valid claims and transfers within
// [start, end], oldest first.
func GetChoreClaims(ctx context.Context, q db.Querier, residentID string, start, end time.Time) ([]models.ChoreClaim, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM chore_claim
		WHERE claimed_by = $1 AND valid = $2 AND claimed_at >= $3 AND claimed_at <= $4
		ORDER BY claimed_at, id
	`, residentID, true, db.ToMillis(start), db.ToMillis(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]models.ChoreClaim, error) {
	defer rows.Close()

	claims := []models.ChoreClaim{}
	for rows.Next() {
		var c models.ChoreClaim
		var choreID, choreValueID, claimedBy, pollID sql.NullString
		var claimedAt int64
		var resolvedAt sql.NullInt64
		var valid sql.NullBool
		var raw string
		err := rows.Scan(&c.ID, &c.HouseID, &choreID, &choreValueID, &claimedBy, &claimedAt, &c.Value,
			&pollID, &resolvedAt, &valid, &raw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c.ChoreID = db.FromNullString(choreID)
		c.ChoreValueID = db.FromNullString(choreValueID)
		c.ClaimedBy = db.FromNullString(claimedBy)
		c.ClaimedAt = db.FromMillis(claimedAt)
		c.PollID = db.FromNullString(pollID)
		c.ResolvedAt = db.FromNullMillis(resolvedAt)
		c.Valid = db.FromNullBool(valid)
		if c.Metadata, err = db.DecodeMetadata(raw); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claims: %w", err)
	}
	return claims, nil
}

// ResolveChoreClaim settles a claim once its poll has closed. The value of a
// regular chore is recomputed without the claim itself, so points accrued
// while it was pending are not lost. A special chore keeps its fixed value.
// Resolving a resolved claim is a no-op and reports false.
func (s *Service) ResolveChoreClaim(ctx context.Context, claimID string, now time.Time) (claim models.ChoreClaim, resolved bool, err error) {
	ctx, span := telemetry.Start(ctx, "chores.ResolveChoreClaim", "")
	defer func() { telemetry.End(span, err) }()

	var valid bool
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		claim, err = GetChoreClaim(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if claim.ResolvedAt != nil || claim.PollID == nil {
			return nil
		}
		if claim.ChoreID == nil && claim.ChoreValueID == nil {
			return nil
		}

		valid, err = s.polls.IsValid(ctx, tx, *claim.PollID, now)
		if err != nil {
			return err
		}
		value := claim.Value
		if claim.ChoreID != nil {
			value, err = GetCurrentChoreValue(ctx, tx, *claim.ChoreID, claim.ClaimedAt, claimID)
			if err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE chore_claim SET resolved_at = $1, valid = $2, value = $3
			WHERE id = $4 AND resolved_at IS NULL
		`, db.ToMillis(now), valid, value, claimID)
		if err != nil {
			return fmt.Errorf("failed to resolve claim: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to resolve claim: %w", err)
		}
		if n == 0 {
			return nil
		}

		resolvedAt := db.FromMillis(db.ToMillis(now))
		claim.ResolvedAt = &resolvedAt
		claim.Valid = &valid
		claim.Value = value
		resolved = true
		return nil
	})
	if err != nil {
		return models.ChoreClaim{}, false, err
	}

	if resolved {
		metrics.Resolutions.WithLabelValues("claim", metrics.Outcome(valid)).Inc()
		slog.Info("claim resolved", "house_id", claim.HouseID, "claim_id", claimID, "valid", valid)
	}
	return claim, resolved, nil
}

// ResolveChoreClaims resolves every closed, pending claim of the house in
// order of poll end time.
func (s *Service) ResolveChoreClaims(ctx context.Context, houseID string, now time.Time) ([]models.ChoreClaim, error) {
	ids, err := s.resolvableIDs(ctx, `
		SELECT c.id
		FROM chore_claim c
		JOIN poll p ON p.id = c.poll_id
		WHERE c.house_id = $1 AND c.resolved_at IS NULL AND p.end_time <= $2
		ORDER BY p.end_time, c.id
	`, houseID, now)
	if err != nil {
		return nil, err
	}

	claims := []models.ChoreClaim{}
	for _, id := range ids {
		claim, resolved, err := s.ResolveChoreClaim(ctx, id, now)
		if errors.Is(err, models.ErrPollNotClosed) {
			continue
		}
		if err != nil {
			return claims, err
		}
		if resolved {
			claims = append(claims, claim)
		}
	}
	return claims, nil
}

func (s *Service) resolvableIDs(ctx context.Context, query, houseID string, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, houseID, db.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query resolvable polls: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	return ids, nil
}

// GetAllChorePoints sums a resident's valid claims and transfers within
// [start, end].
func GetAllChorePoints(ctx context.Context, q db.Querier, residentID string, start, end time.Time) (float64, error) {
	var points float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0.0)
		FROM chore_claim
		WHERE claimed_by = $1 AND valid = $2 AND claimed_at >= $3 AND claimed_at <= $4
	`, residentID, true, db.ToMillis(start), db.ToMillis(end)).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("failed to sum chore points: %w", err)
	}
	return points, nil
}

// GiftChorePoints moves points from the gifter's month-to-date balance to
// the recipient as a pair of offsetting, already valid transfers.
func (s *Service) GiftChorePoints(ctx context.Context, houseID, gifterID, recipientID string, value float64, now time.Time) (claims []models.ChoreClaim, err error) {
	if value <= 0 {
		return nil, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "chores.GiftChorePoints", houseID)
	defer func() { telemetry.End(span, err) }()

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range []string{gifterID, recipientID} {
			voting, err := admin.IsVotingResident(ctx, tx, houseID, id, now)
			if err != nil {
				return err
			}
			if !voting {
				return fmt.Errorf("%w: %s", models.ErrInvalidVoter, id)
			}
		}

		balance, err := GetAllChorePoints(ctx, tx, gifterID, calendar.MonthStart(now), now)
		if err != nil {
			return err
		}
		if balance < value {
			return models.ErrInsufficientBalanceForGift
		}

		giftedAt := db.FromMillis(db.ToMillis(now))
		valid := true
		for _, transfer := range []struct {
			residentID string
			value      float64
		}{
			{gifterID, -value},
			{recipientID, value},
		} {
			claim := models.ChoreClaim{
				ID:         auth.NewID(),
				HouseID:    houseID,
				ClaimedBy:  &transfer.residentID,
				ClaimedAt:  giftedAt,
				Value:      transfer.value,
				ResolvedAt: &giftedAt,
				Valid:      &valid,
				Metadata:   map[string]any{"gift": true},
			}
			if err := insertClaim(ctx, tx, claim); err != nil {
				return err
			}
			claims = append(claims, claim)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("chore points gifted", "house_id", houseID, "gifter_id", gifterID,
		"recipient_id", recipientID, "value", humanize.FormatFloat("#,###.##", value))
	return claims, nil
}
