// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
	"github.com/dustin/go-humanize"
)

// specialValueKey marks a chore proposal as a special chore proposal
const specialValueKey = "value"

func specialValue(metadata map[string]any) (float64, bool) {
	value, ok := metadata[specialValueKey].(float64)
	return value, ok && value > 0
}

// AddSpecialChore values a one-off chore. Its whole value is emitted at
// now and withheld from the regular emission over the rest of the month.
func AddSpecialChore(ctx context.Context, q db.Querier, houseID, name, description string, value float64, now time.Time) (models.SpecialChore, error) {
	special := models.SpecialChore{
		ID:          auth.NewID(),
		HouseID:     houseID,
		Name:        name,
		Description: description,
		ValuedAt:    db.FromMillis(db.ToMillis(now)),
		Value:       value,
	}
	raw, err := db.EncodeMetadata(map[string]any{"name": name, "description": description})
	if err != nil {
		return models.SpecialChore{}, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO chore_value (id, house_id, chore_id, valued_at, value, metadata)
		VALUES ($1, $2, NULL, $3, $4, $5)
	`, special.ID, houseID, db.ToMillis(now), value, raw)
	if err != nil {
		return models.SpecialChore{}, fmt.Errorf("failed to insert special chore: %w", err)
	}
	return special, nil
}

const specialColumns = `id, house_id, valued_at, value, metadata`

func GetSpecialChore(ctx context.Context, q db.Querier, choreValueID string) (models.SpecialChore, error) {
	return scanSpecialChore(q.QueryRowContext(ctx, `
		SELECT `+specialColumns+`
		FROM chore_value
		WHERE id = $1 AND chore_id IS NULL
	`, choreValueID))
}

// GetSpecialChores returns the special chores valued by now that nobody has
// claimed. A pending claim hides the chore until it is rejected.
func GetSpecialChores(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.SpecialChore, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+specialColumns+`
		FROM chore_value v
		WHERE v.house_id = $1 AND v.chore_id IS NULL AND v.valued_at <= $2
		  AND NOT EXISTS (
		    SELECT 1 FROM chore_claim c
		    WHERE c.chore_value_id = v.id AND c.claimed_at <= $2
		      AND (c.valid IS NULL OR c.valid = $3)
		  )
		ORDER BY v.valued_at, v.id
	`, houseID, db.ToMillis(now), true)
	if err != nil {
		return nil, fmt.Errorf("failed to query special chores: %w", err)
	}
	defer rows.Close()

	specials := []models.SpecialChore{}
	for rows.Next() {
		special, err := scanSpecialChore(rows)
		if err != nil {
			return nil, err
		}
		specials = append(specials, special)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read special chores: %w", err)
	}
	return specials, nil
}

func scanSpecialChore(row scanner) (models.SpecialChore, error) {
	var special models.SpecialChore
	var valuedAt int64
	var raw string
	err := row.Scan(&special.ID, &special.HouseID, &valuedAt, &special.Value, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SpecialChore{}, models.ErrChoreNotFound
	}
	if err != nil {
		return models.SpecialChore{}, fmt.Errorf("failed to scan special chore: %w", err)
	}
	special.ValuedAt = db.FromMillis(valuedAt)
	metadata, err := db.DecodeMetadata(raw)
	if err != nil {
		return models.SpecialChore{}, err
	}
	special.Name, _ = metadata["name"].(string)
	special.Description, _ = metadata["description"].(string)
	return special, nil
}

func specialClaimed(ctx context.Context, q db.Querier, choreValueID string, now time.Time) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM chore_claim
		WHERE chore_value_id = $1 AND claimed_at <= $2 AND (valid IS NULL OR valid = $3)
	`, choreValueID, db.ToMillis(now), true).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count special chore claims: %w", err)
	}
	return n > 0, nil
}

// specialProposalMinVotes asks one vote per vote increment of value,
// bounded by the special chore share of residents.
func (s *Service) specialProposalMinVotes(value float64, residents int) int {
	votes := int(math.Ceil(value / s.cfg.SpecialChoreVoteIncrement))
	lo := int(math.Ceil(s.cfg.ChoreSpecialPctMin * float64(residents)))
	hi := int(math.Ceil(s.cfg.ChoreSpecialPctMax * float64(residents)))
	return min(max(votes, lo), hi)
}

// CreateSpecialChoreProposal opens a poll to value a one-off chore. The
// value may not exceed the points left to emit this month. The proposer's
// yay is cast with it.
func (s *Service) CreateSpecialChoreProposal(ctx context.Context, houseID, proposedBy, name, description string, value float64, now time.Time) (proposal models.ChoreProposal, poll models.Poll, err error) {
	if name == "" {
		return models.ChoreProposal{}, models.Poll{}, models.ErrInvalidProposal
	}
	if value <= 0 {
		return models.ChoreProposal{}, models.Poll{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "chores.CreateSpecialChoreProposal", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		voting, err := admin.IsVotingResident(ctx, tx, houseID, proposedBy, now)
		if err != nil {
			return err
		}
		if !voting {
			return models.ErrInvalidVoter
		}

		remaining := calendar.NextMonthStart(now).Sub(now).Hours()
		available, _, err := s.availablePoints(ctx, tx, houseID, now, remaining)
		if err != nil {
			return err
		}
		if value > available*s.cfg.SpecialChoreMaxValueProportion {
			return fmt.Errorf("%w: %s available", models.ErrSpecialValueTooLarge,
				humanize.FormatFloat("#,###.##", math.Max(available*s.cfg.SpecialChoreMaxValueProportion, 0)))
		}

		residents, err := admin.CountVotingResidents(ctx, tx, houseID, now)
		if err != nil {
			return err
		}

		proposal = models.ChoreProposal{
			HouseID:    houseID,
			ProposedBy: proposedBy,
			Name:       name,
			Metadata:   map[string]any{"description": description, specialValueKey: value},
			Active:     true,
		}
		poll, closedEarly, err = s.openProposal(ctx, tx, &proposal, s.cfg.SpecialChoreProposalPollLength,
			s.specialProposalMinVotes(value, residents), now)
		return err
	})
	if err != nil {
		return models.ChoreProposal{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("special chore proposed", "house_id", houseID, "proposal_id", proposal.ID,
		"resident_id", proposedBy, "value", humanize.FormatFloat("#,###.##", value), "min_votes", poll.MinVotes)
	return proposal, poll, nil
}

// ClaimSpecialChore claims the whole value of a special chore and opens a
// poll to verify it, with the claimant's yay already cast. A special chore
// can only have one pending or valid claim.
func (s *Service) ClaimSpecialChore(ctx context.Context, houseID, choreValueID, residentID string, now time.Time, timeSpent int) (claim models.ChoreClaim, poll models.Poll, err error) {
	ctx, span := telemetry.Start(ctx, "chores.ClaimSpecialChore", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		special, err := GetSpecialChore(ctx, tx, choreValueID)
		if err != nil {
			return err
		}
		if special.HouseID != houseID || special.ValuedAt.After(now) {
			return models.ErrChoreNotFound
		}

		voting, err := admin.IsVotingResident(ctx, tx, houseID, residentID, now)
		if err != nil {
			return err
		}
		if !voting {
			return models.ErrInvalidVoter
		}

		claimed, err := specialClaimed(ctx, tx, choreValueID, now)
		if err != nil {
			return err
		}
		if claimed {
			return models.ErrSpecialChoreClaimed
		}

		poll, err = s.polls.Create(ctx, tx, houseID, now, s.cfg.ChoresPollLength, s.claimMinVotes(special.Value))
		if err != nil {
			return err
		}

		claim = models.ChoreClaim{
			ID:           auth.NewID(),
			HouseID:      houseID,
			ChoreValueID: &special.ID,
			ClaimedBy:    &residentID,
			ClaimedAt:    poll.StartTime,
			Value:        special.Value,
			PollID:       &poll.ID,
			Metadata: map[string]any{
				"name":        special.Name,
				"description": special.Description,
				"time_spent":  timeSpent,
			},
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
	slog.Info("special chore claimed", "house_id", houseID, "chore_value_id", choreValueID,
		"resident_id", residentID, "value", humanize.FormatFloat("#,###.##", claim.Value))
	return claim, poll, nil
}
