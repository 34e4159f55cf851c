// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package polls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/metrics"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/telemetry"
)

type Service struct {
	db         *sql.DB
	salt       string
	earlyClose bool
}

// NewService returns a poll service that hashes voters with salt. With
// earlyClose set, a poll ends as soon as every voting resident has voted.
func NewService(conn *sql.DB, salt string, earlyClose bool) *Service {
	return &Service{db: conn, salt: salt, earlyClose: earlyClose}
}

// Create opens a poll from start until start+duration.
func (s *Service) Create(ctx context.Context, q db.Querier, houseID string, start time.Time, duration time.Duration, minVotes int) (models.Poll, error) {
	poll := models.Poll{
		ID:        auth.NewID(),
		HouseID:   houseID,
		StartTime: db.FromMillis(db.ToMillis(start)),
		EndTime:   db.FromMillis(db.ToMillis(start.Add(duration))),
		MinVotes:  minVotes,
		Metadata:  map[string]any{},
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO poll (id, house_id, start_time, end_time, min_votes, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, poll.ID, poll.HouseID, db.ToMillis(poll.StartTime), db.ToMillis(poll.EndTime), poll.MinVotes, "{}")
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to insert poll: %w", err)
	}

	return poll, nil
}

func (s *Service) Get(ctx context.Context, q db.Querier, pollID string) (models.Poll, error) {
	var poll models.Poll
	var start, end int64
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT id, house_id, start_time, end_time, min_votes, metadata
		FROM poll
		WHERE id = $1
	`, pollID).Scan(&poll.ID, &poll.HouseID, &start, &end, &poll.MinVotes, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, models.ErrPollNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query poll: %w", err)
	}

	poll.StartTime = db.FromMillis(start)
	poll.EndTime = db.FromMillis(end)
	if poll.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.Poll{}, err
	}
	return poll, nil
}

// SubmitVote records a resident's vote, replacing any earlier vote on the
// same poll. Cancelling stores a null vote.
func (s *Service) SubmitVote(ctx context.Context, pollID, residentID string, now time.Time, vote models.Vote) (err error) {
	if !vote.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidVote, vote)
	}

	ctx, span := telemetry.Start(ctx, "polls.SubmitVote", "")
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		closedEarly, err = s.RecordVote(ctx, tx, pollID, residentID, now, vote)
		return err
	})
	if err != nil {
		return err
	}

	s.ObserveVote(pollID, vote, closedEarly, now)
	return nil
}

// RecordVote is SubmitVote within the caller's transaction. It reports
// whether the vote closed the poll early; the caller passes that on to
// ObserveVote once the transaction commits.
func (s *Service) RecordVote(ctx context.Context, q db.Querier, pollID, residentID string, now time.Time, vote models.Vote) (bool, error) {
	if !vote.Valid() {
		return false, fmt.Errorf("%w: %q", models.ErrInvalidVote, vote)
	}

	poll, err := s.Get(ctx, q, pollID)
	if err != nil {
		return false, err
	}
	if now.After(poll.EndTime) {
		return false, models.ErrPollClosed
	}

	voting, err := admin.IsVotingResident(ctx, q, poll.HouseID, residentID, now)
	if err != nil {
		return false, err
	}
	if !voting {
		return false, models.ErrInvalidVoter
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO poll_vote (poll_id, hashed_voter_id, submitted_at, vote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (poll_id, hashed_voter_id) DO UPDATE
		SET submitted_at = excluded.submitted_at, vote = excluded.vote
	`, pollID, auth.HashVoter(residentID, s.salt), db.ToMillis(now), encodeVote(vote))
	if err != nil {
		return false, fmt.Errorf("failed to upsert vote: %w", err)
	}

	if !s.earlyClose {
		return false, nil
	}
	return s.closeIfComplete(ctx, q, poll, now)
}

// RecordOpenerYay records the yay of the resident who opened poll, within
// the caller's transaction. An early close moves poll's end time to now.
func (s *Service) RecordOpenerYay(ctx context.Context, q db.Querier, poll *models.Poll, residentID string, now time.Time) (bool, error) {
	closedEarly, err := s.RecordVote(ctx, q, poll.ID, residentID, now, models.VoteYay)
	if err != nil {
		return false, err
	}
	if closedEarly {
		poll.EndTime = db.FromMillis(db.ToMillis(now))
	}
	return closedEarly, nil
}

// ObserveVote counts a committed vote.
func (s *Service) ObserveVote(pollID string, vote models.Vote, closedEarly bool, now time.Time) {
	metrics.VotesSubmitted.WithLabelValues(string(vote)).Inc()
	if closedEarly {
		metrics.PollsClosedEarly.Inc()
		slog.Info("poll closed early", "poll_id", pollID, "closed_at", now)
	}
}

// closeIfComplete pulls endTime forward to now once every voting resident
// has a vote row in the window.
func (s *Service) closeIfComplete(ctx context.Context, q db.Querier, poll models.Poll, now time.Time) (bool, error) {
	var votes int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM poll_vote
		WHERE poll_id = $1 AND submitted_at >= $2 AND submitted_at <= $3
	`, poll.ID, db.ToMillis(poll.StartTime), db.ToMillis(poll.EndTime)).Scan(&votes)
	if err != nil {
		return false, fmt.Errorf("failed to count votes: %w", err)
	}

	voting, err := admin.CountVotingResidents(ctx, q, poll.HouseID, now)
	if err != nil {
		return false, err
	}
	if votes < voting {
		return false, nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE poll SET end_time = $1
		WHERE id = $2 AND end_time > $1
	`, db.ToMillis(now), poll.ID)
	if err != nil {
		return false, fmt.Errorf("failed to close poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to close poll: %w", err)
	}
	return n > 0, nil
}

// ResultCounts counts yays and nays submitted within [startTime, endTime].
func (s *Service) ResultCounts(ctx context.Context, q db.Querier, pollID string) (models.PollCounts, error) {
	poll, err := s.Get(ctx, q, pollID)
	if err != nil {
		return models.PollCounts{}, err
	}
	return s.counts(ctx, q, poll)
}

func (s *Service) counts(ctx context.Context, q db.Querier, poll models.Poll) (models.PollCounts, error) {
	var counts models.PollCounts
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN vote = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote = 0 THEN 1 ELSE 0 END), 0)
		FROM poll_vote
		WHERE poll_id = $1 AND submitted_at >= $2 AND submitted_at <= $3
	`, poll.ID, db.ToMillis(poll.StartTime), db.ToMillis(poll.EndTime)).Scan(&counts.Yays, &counts.Nays)
	if err != nil {
		return models.PollCounts{}, fmt.Errorf("failed to count votes: %w", err)
	}
	return counts, nil
}

// IsValid reports whether a closed poll passed. It fails with
// ErrPollNotClosed before endTime.
func (s *Service) IsValid(ctx context.Context, q db.Querier, pollID string, now time.Time) (bool, error) {
	poll, err := s.Get(ctx, q, pollID)
	if err != nil {
		return false, err
	}
	if now.Before(poll.EndTime) {
		return false, models.ErrPollNotClosed
	}

	counts, err := s.counts(ctx, q, poll)
	if err != nil {
		return false, err
	}
	return Passes(counts, poll.MinVotes), nil
}

// Passes applies the quorum rule: at least minVotes yays, and more yays
// than nays.
func Passes(counts models.PollCounts, minVotes int) bool {
	return counts.Yays >= minVotes && counts.Yays > counts.Nays
}

// UpdateMetadata merges patch into the poll metadata.
func (s *Service) UpdateMetadata(ctx context.Context, q db.Querier, pollID string, patch map[string]any) (models.Poll, error) {
	poll, err := s.Get(ctx, q, pollID)
	if err != nil {
		return models.Poll{}, err
	}

	poll.Metadata = db.MergeMetadata(poll.Metadata, patch)
	raw, err := db.EncodeMetadata(poll.Metadata)
	if err != nil {
		return models.Poll{}, err
	}
	if _, err := q.ExecContext(ctx, `UPDATE poll SET metadata = $1 WHERE id = $2`, raw, pollID); err != nil {
		return models.Poll{}, fmt.Errorf("failed to update poll metadata: %w", err)
	}
	return poll, nil
}

func encodeVote(vote models.Vote) sql.NullInt64 {
	switch vote {
	case models.VoteYay:
		return sql.NullInt64{Int64: 1, Valid: true}
	case models.VoteNay:
		return sql.NullInt64{Int64: 0, Valid: true}
	default:
		return sql.NullInt64{}
	}
}
