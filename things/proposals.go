// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package things

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
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
)

const proposalColumns = `id, house_id, proposed_by, thing_id, type, name, value, metadata, active, poll_id, resolved_at`

// CreateThingProposal opens a poll to add a thing (thingID nil) or to edit
// or remove an existing one. The proposer's yay is cast with it.
func (s *Service) CreateThingProposal(ctx context.Context, houseID, proposedBy string, thingID *string, thingType, name string, value float64, metadata map[string]any, active bool, now time.Time) (proposal models.ThingProposal, poll models.Poll, err error) {
	if thingID == nil && (thingType == "" || name == "") {
		return models.ThingProposal{}, models.Poll{}, models.ErrInvalidThingProposal
	}
	if value < 0 {
		return models.ThingProposal{}, models.Poll{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "things.CreateThingProposal", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if thingID != nil {
			thing, err := GetThing(ctx, tx, *thingID)
			if err != nil {
				return err
			}
			if thing.HouseID != houseID {
				return models.ErrThingNotFound
			}
		}

		voting, err := admin.IsVotingResident(ctx, tx, houseID, proposedBy, now)
		if err != nil {
			return err
		}
		if !voting {
			return models.ErrInvalidVoter
		}

		residents, err := admin.CountVotingResidents(ctx, tx, houseID, now)
		if err != nil {
			return err
		}
		poll, err = s.polls.Create(ctx, tx, houseID, now, s.cfg.ThingsProposalPollLength,
			int(math.Ceil(s.cfg.ThingsProposalPct*float64(residents))))
		if err != nil {
			return err
		}

		if metadata == nil {
			metadata = map[string]any{}
		}
		proposal = models.ThingProposal{
			ID:         auth.NewID(),
			HouseID:    houseID,
			ProposedBy: proposedBy,
			ThingID:    thingID,
			Type:       thingType,
			Name:       name,
			Value:      value,
			Metadata:   metadata,
			Active:     active,
			PollID:     poll.ID,
		}
		raw, err := db.EncodeMetadata(metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO thing_proposal (`+proposalColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, proposal.ID, houseID, proposedBy, db.ToNullString(thingID), thingType, name, value,
			raw, active, poll.ID, nil)
		if err != nil {
			return fmt.Errorf("failed to insert thing proposal: %w", err)
		}

		closedEarly, err = s.polls.RecordOpenerYay(ctx, tx, &poll, proposedBy, now)
		return err
	})
	if err != nil {
		return models.ThingProposal{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("thing proposed", "house_id", houseID, "proposal_id", proposal.ID,
		"resident_id", proposedBy, "min_votes", poll.MinVotes)
	return proposal, poll, nil
}

func GetThingProposal(ctx context.Context, q db.Querier, proposalID string) (models.ThingProposal, error) {
	var p models.ThingProposal
	var thingID sql.NullString
	var resolvedAt sql.NullInt64
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM thing_proposal
		WHERE id = $1
	`, proposalID).Scan(&p.ID, &p.HouseID, &p.ProposedBy, &thingID, &p.Type, &p.Name, &p.Value,
		&raw, &p.Active, &p.PollID, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ThingProposal{}, models.ErrProposalNotFound
	}
	if err != nil {
		return models.ThingProposal{}, fmt.Errorf("failed to get thing proposal: %w", err)
	}
	p.ThingID = db.FromNullString(thingID)
	p.ResolvedAt = db.FromNullMillis(resolvedAt)
	if p.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.ThingProposal{}, err
	}
	return p, nil
}

// ResolveThingProposal applies a passing proposal once its poll has closed.
// An edit with an empty type, name or metadata keeps the thing's current
// ones.
func (s *Service) ResolveThingProposal(ctx context.Context, proposalID string, now time.Time) (proposal models.ThingProposal, err error) {
	ctx, span := telemetry.Start(ctx, "things.ResolveThingProposal", "")
	defer func() { telemetry.End(span, err) }()

	var valid bool
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		proposal, err = GetThingProposal(ctx, tx, proposalID)
		if err != nil {
			return err
		}
		if proposal.ResolvedAt != nil {
			return models.ErrProposalAlreadyResolved
		}

		valid, err = s.polls.IsValid(ctx, tx, proposal.PollID, now)
		if err != nil {
			return err
		}
		if valid {
			if err := applyProposal(ctx, tx, proposal); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE thing_proposal SET resolved_at = $1
			WHERE id = $2 AND resolved_at IS NULL
		`, db.ToMillis(now), proposalID)
		if err != nil {
			return fmt.Errorf("failed to resolve thing proposal: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to resolve thing proposal: %w", err)
		} else if n == 0 {
			return models.ErrProposalAlreadyResolved
		}

		resolvedAt := db.FromMillis(db.ToMillis(now))
		proposal.ResolvedAt = &resolvedAt
		return nil
	})
	if err != nil {
		return models.ThingProposal{}, err
	}

	metrics.Resolutions.WithLabelValues("thing_proposal", metrics.Outcome(valid)).Inc()
	slog.Info("thing proposal resolved", "house_id", proposal.HouseID, "proposal_id", proposalID, "valid", valid)
	return proposal, nil
}

func applyProposal(ctx context.Context, q db.Querier, p models.ThingProposal) error {
	if p.ThingID == nil {
		_, err := AddThing(ctx, q, p.HouseID, p.Type, p.Name, p.Value, p.Metadata)
		return err
	}

	thing, err := GetThing(ctx, q, *p.ThingID)
	if err != nil {
		return err
	}
	thingType, name, metadata := p.Type, p.Name, p.Metadata
	if thingType == "" {
		thingType = thing.Type
	}
	if name == "" {
		name = thing.Name
	}
	if len(metadata) == 0 {
		metadata = thing.Metadata
	}
	_, err = EditThing(ctx, q, thing.ID, thingType, name, p.Value, metadata, p.Active)
	return err
}

// ResolveThingProposals resolves every closed, pending proposal of the
// house in order of poll end time.
func (s *Service) ResolveThingProposals(ctx context.Context, houseID string, now time.Time) ([]models.ThingProposal, error) {
	ids, err := s.resolvableIDs(ctx, `
		SELECT tp.id
		FROM thing_proposal tp
		JOIN poll p ON p.id = tp.poll_id
		WHERE tp.house_id = $1 AND tp.resolved_at IS NULL AND p.end_time <= $2
		ORDER BY p.end_time, tp.id
	`, houseID, now)
	if err != nil {
		return nil, err
	}

	proposals := []models.ThingProposal{}
	for _, id := range ids {
		proposal, err := s.ResolveThingProposal(ctx, id, now)
		if errors.Is(err, models.ErrProposalAlreadyResolved) || errors.Is(err, models.ErrPollNotClosed) {
			continue
		}
		if err != nil {
			return proposals, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}
