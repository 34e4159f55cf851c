// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package hearts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/auth"
	"github.com/danielhkuo/chorewheel/calendar"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/power"
	"github.com/danielhkuo/chorewheel/telemetry"
)

var karmaPattern = regexp.MustCompile(`<@(\w+)>\s*\+\+`)

// ParseKarmaRecipients returns the ids mentioned as <@id>++ in text, in
// order of appearance.
func ParseKarmaRecipients(text string) []string {
	var recipients []string
	for _, match := range karmaPattern.FindAllStringSubmatch(text, -1) {
		recipients = append(recipients, match[1])
	}
	return recipients
}

// GiveKarma records karma from giver to each receiver. Self-karma and
// receivers who are not voting residents of the house are dropped.
func (s *Service) GiveKarma(ctx context.Context, houseID, giverID string, receiverIDs []string, now time.Time) ([]models.HeartKarma, error) {
	karma := []models.HeartKarma{}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, receiverID := range receiverIDs {
			if receiverID == giverID {
				continue
			}
			voting, err := admin.IsVotingResident(ctx, tx, houseID, receiverID, now)
			if err != nil {
				return err
			}
			if !voting {
				continue
			}

			k := models.HeartKarma{
				ID:         auth.NewID(),
				HouseID:    houseID,
				GiverID:    giverID,
				ReceiverID: receiverID,
				GivenAt:    db.FromMillis(db.ToMillis(now)),
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO heart_karma (id, house_id, giver_id, receiver_id, given_at)
				VALUES ($1, $2, $3, $4, $5)
			`, k.ID, houseID, giverID, receiverID, db.ToMillis(now))
			if err != nil {
				return fmt.Errorf("failed to insert karma: %w", err)
			}
			karma = append(karma, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return karma, nil
}

// GetKarma lists karma given in the house within [start, end].
func GetKarma(ctx context.Context, q db.Querier, houseID string, start, end time.Time) ([]models.HeartKarma, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, house_id, giver_id, receiver_id, given_at
		FROM heart_karma
		WHERE house_id = $1 AND given_at >= $2 AND given_at <= $3
		ORDER BY given_at, id
	`, houseID, db.ToMillis(start), db.ToMillis(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query karma: %w", err)
	}
	defer rows.Close()

	var karma []models.HeartKarma
	for rows.Next() {
		var k models.HeartKarma
		var givenAt int64
		if err := rows.Scan(&k.ID, &k.HouseID, &k.GiverID, &k.ReceiverID, &givenAt); err != nil {
			return nil, fmt.Errorf("failed to scan karma: %w", err)
		}
		k.GivenAt = db.FromMillis(givenAt)
		karma = append(karma, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read karma: %w", err)
	}
	return karma, nil
}

// GetKarmaRankings ranks everyone who gave or received karma within
// [start, end]. Each karma is a full preference for the receiver over the
// giver, with no implicit preference between residents.
func GetKarmaRankings(ctx context.Context, q db.Querier, houseID string, start, end time.Time) ([]models.KarmaRanking, error) {
	karma, err := GetKarma(ctx, q, houseID, start, end)
	if err != nil {
		return nil, err
	}
	if len(karma) == 0 {
		return []models.KarmaRanking{}, nil
	}

	var residents []string
	edges := make([]power.Edge[string], 0, len(karma))
	for _, k := range karma {
		residents = append(residents, k.ReceiverID, k.GiverID)
		edge, err := power.Normalize(k.ReceiverID, k.GiverID, 1)
		if err != nil {
			continue
		}
		edges = append(edges, edge)
	}
	slices.Sort(residents)
	residents = slices.Compact(residents)

	ranking, err := power.Rank(residents, edges, power.Options{Participants: len(residents)})
	if errors.Is(err, power.ErrTooFewItems) {
		return []models.KarmaRanking{{ResidentID: residents[0], Ranking: 1}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rank karma: %w", err)
	}

	rankings := make([]models.KarmaRanking, 0, len(ranking))
	for _, id := range ranking.Sorted() {
		rankings = append(rankings, models.KarmaRanking{ResidentID: id, Ranking: ranking[id]})
	}
	return rankings, nil
}

// GetNumKarmaWinners caps the winners at one per KarmaProportion voting
// residents, and at the number of distinct receivers.
func (s *Service) GetNumKarmaWinners(ctx context.Context, q db.Querier, houseID string, start, end time.Time) (int, error) {
	voting, err := admin.CountVotingResidents(ctx, q, houseID, end)
	if err != nil {
		return 0, err
	}
	karma, err := GetKarma(ctx, q, houseID, start, end)
	if err != nil {
		return 0, err
	}

	receivers := map[string]struct{}{}
	for _, k := range karma {
		receivers[k.ReceiverID] = struct{}{}
	}
	return min(voting/s.cfg.KarmaProportion, len(receivers)), nil
}

// GetResidentMaxHearts grows the heart cap with the karma hearts a resident
// has earned, up to HeartsMaxLimit.
func (s *Service) GetResidentMaxHearts(ctx context.Context, q db.Querier, residentID string, now time.Time) (float64, error) {
	var karmaHearts int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM heart
		WHERE resident_id = $1 AND kind = $2 AND generated_at <= $3
	`, residentID, string(models.HeartKindKarma), db.ToMillis(now)).Scan(&karmaHearts)
	if err != nil {
		return 0, fmt.Errorf("failed to count karma hearts: %w", err)
	}
	return float64(min(s.cfg.HeartsMaxBase+karmaHearts/s.cfg.HeartsKarmaGrowthRate, s.cfg.HeartsMaxLimit)), nil
}

// GenerateKarmaHearts awards last month's top karma recipients up to one
// heart each, KarmaDelay after the month starts. Each house is awarded once
// per month.
func (s *Service) GenerateKarmaHearts(ctx context.Context, houseID string, now time.Time) (hearts []models.Heart, err error) {
	monthStart := calendar.MonthStart(now)
	generatedAt := monthStart.Add(s.cfg.KarmaDelay)
	if now.Before(generatedAt) {
		return nil, nil
	}

	ctx, span := telemetry.Start(ctx, "hearts.GenerateKarmaHearts", houseID)
	defer func() { telemetry.End(span, err) }()

	prevEnd := calendar.PrevMonthEnd(now)
	prevStart := calendar.MonthStart(prevEnd)

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var awarded int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM heart
			WHERE house_id = $1 AND kind = $2 AND period_start = $3
		`, houseID, string(models.HeartKindKarma), db.ToMillis(monthStart)).Scan(&awarded)
		if err != nil {
			return fmt.Errorf("failed to query karma hearts: %w", err)
		}
		if awarded > 0 {
			return nil
		}

		winners, err := s.GetNumKarmaWinners(ctx, tx, houseID, prevStart, prevEnd)
		if err != nil || winners <= 0 {
			return err
		}
		rankings, err := GetKarmaRankings(ctx, tx, houseID, prevStart, prevEnd)
		if err != nil {
			return err
		}

		for _, winner := range rankings[:min(winners, len(rankings))] {
			maxHearts, err := s.GetResidentMaxHearts(ctx, tx, winner.ResidentID, generatedAt)
			if err != nil {
				return err
			}
			current, _, err := Balance(ctx, tx, winner.ResidentID, generatedAt)
			if err != nil {
				return err
			}

			heart := models.Heart{
				HouseID:     houseID,
				ResidentID:  winner.ResidentID,
				Kind:        models.HeartKindKarma,
				GeneratedAt: generatedAt,
				Value:       min(1, max(0, maxHearts-current)),
				PeriodStart: &monthStart,
				Metadata:    map[string]any{"ranking": winner.Ranking},
			}
			inserted, err := Insert(ctx, tx, &heart)
			if err != nil {
				return err
			}
			if inserted {
				hearts = append(hearts, heart)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(hearts) > 0 {
		slog.Info("karma hearts generated", "house_id", houseID, "winners", len(hearts))
	}
	return hearts, nil
}
