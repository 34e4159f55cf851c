// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package hearts

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

// IssueChallenge opens a poll asking whether the challengee should lose
// value hearts, with the challenger's yay cast. A challengee can face one
// open challenge at a time.
func (s *Service) IssueChallenge(ctx context.Context, houseID, challengerID, challengeeID string, value float64, now time.Time, circumstance string) (challenge models.HeartChallenge, poll models.Poll, err error) {
	if value <= 0 {
		return models.HeartChallenge{}, models.Poll{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "hearts.IssueChallenge", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range []string{challengerID, challengeeID} {
			voting, err := admin.IsVotingResident(ctx, tx, houseID, id, now)
			if err != nil {
				return err
			}
			if !voting {
				return fmt.Errorf("%w: %s", models.ErrInvalidVoter, id)
			}
		}

		var open int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM heart_challenge
			WHERE house_id = $1 AND challengee_id = $2 AND resolved_at IS NULL
		`, houseID, challengeeID).Scan(&open)
		if err != nil {
			return fmt.Errorf("failed to query open challenges: %w", err)
		}
		if open > 0 {
			return models.ErrActiveChallengeExists
		}

		minVotes, err := s.challengeMinVotes(ctx, tx, houseID, challengeeID, value, now)
		if err != nil {
			return err
		}

		poll, err = s.polls.Create(ctx, tx, houseID, now, s.cfg.HeartsPollLength, minVotes)
		if err != nil {
			return err
		}

		challenge = models.HeartChallenge{
			ID:           auth.NewID(),
			HouseID:      houseID,
			ChallengerID: challengerID,
			ChallengeeID: challengeeID,
			ChallengedAt: poll.StartTime,
			Value:        value,
			PollID:       poll.ID,
			Circumstance: circumstance,
		}
		raw, err := db.EncodeMetadata(map[string]any{"circumstance": circumstance})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO heart_challenge (id, house_id, challenger_id, challengee_id, challenged_at, value, poll_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, challenge.ID, houseID, challengerID, challengeeID, db.ToMillis(now), value, poll.ID, raw)
		if err != nil {
			return fmt.Errorf("failed to insert challenge: %w", err)
		}

		closedEarly, err = s.polls.RecordOpenerYay(ctx, tx, &poll, challengerID, now)
		return err
	})
	if err != nil {
		return models.HeartChallenge{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("challenge issued", "house_id", houseID, "challenge_id", challenge.ID,
		"challengee_id", challengeeID, "value", value, "min_votes", poll.MinVotes)
	return challenge, poll, nil
}

// challengeMinVotes raises the quorum when the challenge would leave the
// challengee at or below the critical balance.
func (s *Service) challengeMinVotes(ctx context.Context, q db.Querier, houseID, challengeeID string, value float64, now time.Time) (int, error) {
	voting, err := admin.CountVotingResidents(ctx, q, houseID, now)
	if err != nil {
		return 0, err
	}
	hearts, _, err := Balance(ctx, q, challengeeID, now)
	if err != nil {
		return 0, err
	}

	pct := s.cfg.HeartsMinPctInitial
	if hearts-value <= s.cfg.HeartsCriticalNum {
		pct = s.cfg.HeartsMinPctCritical
	}
	return int(math.Ceil(float64(voting) * pct)), nil
}

func GetChallenge(ctx context.Context, q db.Querier, challengeID string) (models.HeartChallenge, error) {
	var c models.HeartChallenge
	var challengedAt int64
	var resolvedAt sql.NullInt64
	var heartID sql.NullString
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT id, house_id, challenger_id, challengee_id, challenged_at, value, poll_id, resolved_at, heart_id, metadata
		FROM heart_challenge
		WHERE id = $1
	`, challengeID).Scan(&c.ID, &c.HouseID, &c.ChallengerID, &c.ChallengeeID, &challengedAt,
		&c.Value, &c.PollID, &resolvedAt, &heartID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HeartChallenge{}, models.ErrChallengeNotFound
	}
	if err != nil {
		return models.HeartChallenge{}, fmt.Errorf("failed to query challenge: %w", err)
	}

	c.ChallengedAt = db.FromMillis(challengedAt)
	c.ResolvedAt = db.FromNullMillis(resolvedAt)
	c.HeartID = db.FromNullString(heartID)
	metadata, err := db.DecodeMetadata(raw)
	if err != nil {
		return models.HeartChallenge{}, err
	}
	c.Circumstance, _ = metadata["circumstance"].(string)
	return c, nil
}

// ResolveChallenge settles a closed challenge. The challengee loses the
// stake if the poll passed, otherwise the challenger does. A challenge is
// resolved once; later attempts fail with ErrChallengeAlreadyResolved.
func (s *Service) ResolveChallenge(ctx context.Context, challengeID string, now time.Time) (challenge models.HeartChallenge, err error) {
	ctx, span := telemetry.Start(ctx, "hearts.ResolveChallenge", "")
	defer func() { telemetry.End(span, err) }()

	var valid bool
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		challenge, err = GetChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		if challenge.ResolvedAt != nil {
			return models.ErrChallengeAlreadyResolved
		}

		valid, err = s.polls.IsValid(ctx, tx, challenge.PollID, now)
		if err != nil {
			return err
		}
		loser := challenge.ChallengerID
		if valid {
			loser = challenge.ChallengeeID
		}

		heart := models.Heart{
			HouseID:     challenge.HouseID,
			ResidentID:  loser,
			Kind:        models.HeartKindChallenge,
			GeneratedAt: now,
			Value:       -challenge.Value,
			Metadata:    map[string]any{"challenge_id": challenge.ID},
		}
		if _, err := Insert(ctx, tx, &heart); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE heart_challenge
			SET resolved_at = $1, heart_id = $2
			WHERE id = $3 AND resolved_at IS NULL
		`, db.ToMillis(now), heart.ID, challengeID)
		if err != nil {
			return fmt.Errorf("failed to resolve challenge: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to resolve challenge: %w", err)
		} else if n == 0 {
			return models.ErrChallengeAlreadyResolved
		}

		resolvedAt := db.FromMillis(db.ToMillis(now))
		challenge.ResolvedAt = &resolvedAt
		challenge.HeartID = &heart.ID
		return nil
	})
	if err != nil {
		return models.HeartChallenge{}, err
	}

	metrics.Resolutions.WithLabelValues("challenge", metrics.Outcome(valid)).Inc()
	slog.Info("challenge resolved", "house_id", challenge.HouseID, "challenge_id", challengeID, "upheld", valid)
	return challenge, nil
}

// ResolveChallenges resolves every closed challenge of the house in order
// of poll end time. Challenges resolved concurrently are skipped.
func (s *Service) ResolveChallenges(ctx context.Context, houseID string, now time.Time) ([]models.HeartChallenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM heart_challenge c
		JOIN poll p ON p.id = c.poll_id
		WHERE c.house_id = $1 AND c.resolved_at IS NULL AND p.end_time <= $2
		ORDER BY p.end_time, c.id
	`, houseID, db.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query resolvable challenges: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}

	resolved := []models.HeartChallenge{}
	for _, id := range ids {
		challenge, err := s.ResolveChallenge(ctx, id, now)
		if errors.Is(err, models.ErrChallengeAlreadyResolved) || errors.Is(err, models.ErrPollNotClosed) {
			continue
		}
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, challenge)
	}
	return resolved, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
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
