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
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
)

const proposalColumns = `id, house_id, proposed_by, chore_id, name, metadata, active, poll_id, resolved_at`

// CreateChoreProposal opens a poll to add a chore (choreID nil) or to edit
// or delete an existing one. The proposer's yay is cast with it.
func (s *Service) CreateChoreProposal(ctx context.Context, houseID, proposedBy string, choreID *string, name string, metadata map[string]any, active bool, now time.Time) (proposal models.ChoreProposal, poll models.Poll, err error) {
	if choreID == nil && name == "" {
		return models.ChoreProposal{}, models.Poll{}, models.ErrInvalidProposal
	}
	if _, ok := metadata[specialValueKey]; ok {
		return models.ChoreProposal{}, models.Poll{}, fmt.Errorf("%w: %q is reserved for special chores", models.ErrInvalidProposal, specialValueKey)
	}

	ctx, span := telemetry.Start(ctx, "chores.CreateChoreProposal", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if choreID != nil {
			chore, err := GetChore(ctx, tx, *choreID)
			if err != nil {
				return err
			}
			if chore.HouseID != houseID {
				return models.ErrChoreNotFound
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
		minVotes := int(math.Ceil(s.cfg.ChoreProposalPct * float64(residents)))

		proposal = models.ChoreProposal{
			HouseID:    houseID,
			ProposedBy: proposedBy,
			ChoreID:    choreID,
			Name:       name,
			Metadata:   metadata,
			Active:     active,
		}
		poll, closedEarly, err = s.openProposal(ctx, tx, &proposal, s.cfg.ChoresProposalPollLength, minVotes, now)
		return err
	})
	if err != nil {
		return models.ChoreProposal{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("chore proposed", "house_id", houseID, "proposal_id", proposal.ID,
		"resident_id", proposedBy, "min_votes", poll.MinVotes)
	return proposal, poll, nil
}

// openProposal opens the proposal's poll, stores the proposal and casts the
// proposer's yay
func (s *Service) openProposal(ctx context.Context, tx *sql.Tx, p *models.ChoreProposal, length time.Duration, minVotes int, now time.Time) (models.Poll, bool, error) {
	poll, err := s.polls.Create(ctx, tx, p.HouseID, now, length, minVotes)
	if err != nil {
		return models.Poll{}, false, err
	}

	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.ID = auth.NewID()
	p.PollID = poll.ID
	raw, err := db.EncodeMetadata(p.Metadata)
	if err != nil {
		return models.Poll{}, false, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chore_proposal (`+proposalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.HouseID, p.ProposedBy, db.ToNullString(p.ChoreID), p.Name, raw, p.Active, poll.ID, nil)
	if err != nil {
		return models.Poll{}, false, fmt.Errorf("failed to insert chore proposal: %w", err)
	}

	closedEarly, err := s.polls.RecordOpenerYay(ctx, tx, &poll, p.ProposedBy, now)
	if err != nil {
		return models.Poll{}, false, err
	}
	return poll, closedEarly, nil
}

func GetChoreProposal(ctx context.Context, q db.Querier, proposalID string) (models.ChoreProposal, error) {
	var p models.ChoreProposal
	var choreID sql.NullString
	var resolvedAt sql.NullInt64
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM chore_proposal
		WHERE id = $1
	`, proposalID).Scan(&p.ID, &p.HouseID, &p.ProposedBy, &choreID, &p.Name, &raw,
		&p.Active, &p.PollID, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChoreProposal{}, models.ErrProposalNotFound
	}
	if err != nil {
		return models.ChoreProposal{}, fmt.Errorf("failed to get chore proposal: %w", err)
	}
	p.ChoreID = db.FromNullString(choreID)
	p.ResolvedAt = db.FromNullMillis(resolvedAt)
	if p.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.ChoreProposal{}, err
	}
	return p, nil
}

// ResolveChoreProposal applies a passing proposal once its poll has closed.
// An edit with an empty name or no metadata keeps the chore's current ones.
// A special chore proposal values the special chore at now.
func (s *Service) ResolveChoreProposal(ctx context.Context, proposalID string, now time.Time) (proposal models.ChoreProposal, err error) {
	ctx, span := telemetry.Start(ctx, "chores.ResolveChoreProposal", "")
	defer func() { telemetry.End(span, err) }()

	var valid bool
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		proposal, err = GetChoreProposal(ctx, tx, proposalID)
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
			if err := applyProposal(ctx, tx, proposal, now); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE chore_proposal SET resolved_at = $1
			WHERE id = $2 AND resolved_at IS NULL
		`, db.ToMillis(now), proposalID)
		if err != nil {
			return fmt.Errorf("failed to resolve chore proposal: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to resolve chore proposal: %w", err)
		} else if n == 0 {
			return models.ErrProposalAlreadyResolved
		}

		resolvedAt := db.FromMillis(db.ToMillis(now))
		proposal.ResolvedAt = &resolvedAt
		return nil
	})
	if err != nil {
		return models.ChoreProposal{}, err
	}

	metrics.Resolutions.WithLabelValues("proposal", metrics.Outcome(valid)).Inc()
	slog.Info("proposal resolved", "house_id", proposal.HouseID, "proposal_id", proposalID, "valid", valid)
	return proposal, nil
}

func applyProposal(ctx context.Context, q db.Querier, p models.ChoreProposal, now time.Time) error {
	if value, ok := specialValue(p.Metadata); ok {
		description, _ := p.Metadata["description"].(string)
		_, err := AddSpecialChore(ctx, q, p.HouseID, p.Name, description, value, now)
		return err
	}
	if p.ChoreID == nil {
		_, err := AddChore(ctx, q, p.HouseID, p.Name, p.Metadata)
		return err
	}

	chore, err := GetChore(ctx, q, *p.ChoreID)
	if err != nil {
		return err
	}
	name, metadata := p.Name, p.Metadata
	if name == "" {
		name = chore.Name
	}
	if len(metadata) == 0 {
		metadata = chore.Metadata
	}
	_, err = EditChore(ctx, q, chore.ID, name, metadata, p.Active)
	return err
}

// ResolveChoreProposals resolves every closed, pending proposal of the house
// in order of poll end time.
func (s *Service) ResolveChoreProposals(ctx context.Context, houseID string, now time.Time) ([]models.ChoreProposal, error) {
	ids, err := s.resolvableIDs(ctx, `
		SELECT cp.id
		FROM chore_proposal cp
		JOIN poll p ON p.id = cp.poll_id
		WHERE cp.house_id = $1 AND cp.resolved_at IS NULL AND p.end_time <= $2
		ORDER BY p.end_time, cp.id
	`, houseID, now)
	if err != nil {
		return nil, err
	}

	proposals := []models.ChoreProposal{}
	for _, id := range ids {
		proposal, err := s.ResolveChoreProposal(ctx, id, now)
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
