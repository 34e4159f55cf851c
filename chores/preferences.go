// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package chores

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/danielhkuo/chorewheel/admin"
	"github.com/danielhkuo/chorewheel/db"
	"github.com/danielhkuo/chorewheel/models"
	"github.com/danielhkuo/chorewheel/power"
)

// NormalizeChorePreferences converts a resident's oriented preferences into
// canonical rows, checking that every chore is an active chore of the house.
func NormalizeChorePreferences(ctx context.Context, q db.Querier, houseID, residentID string, prefs []models.OrientedChorePreference) ([]models.ChorePreference, error) {
	chores, err := GetChores(ctx, q, houseID)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(chores))
	for _, chore := range chores {
		active[chore.ID] = true
	}

	normalized := make([]models.ChorePreference, 0, len(prefs))
	for _, p := range prefs {
		if !active[p.TargetChoreID] || !active[p.SourceChoreID] {
			return nil, fmt.Errorf("%w: %s, %s", models.ErrChoreNotFound, p.TargetChoreID, p.SourceChoreID)
		}
		edge, err := power.Normalize(p.TargetChoreID, p.SourceChoreID, p.Preference)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidPreference, err)
		}
		normalized = append(normalized, models.ChorePreference{
			ResidentID:   residentID,
			AlphaChoreID: edge.Alpha,
			BetaChoreID:  edge.Beta,
			Preference:   edge.Preference,
		})
	}
	return normalized, nil
}

// SetChorePreferences upserts a resident's preferences.
func (s *Service) SetChorePreferences(ctx context.Context, houseID, residentID string, prefs []models.OrientedChorePreference, now time.Time) ([]models.ChorePreference, error) {
	var normalized []models.ChorePreference
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		voting, err := admin.IsVotingResident(ctx, tx, houseID, residentID, now)
		if err != nil {
			return err
		}
		if !voting {
			return models.ErrInvalidVoter
		}

		normalized, err = NormalizeChorePreferences(ctx, tx, houseID, residentID, prefs)
		if err != nil {
			return err
		}

		for _, p := range normalized {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO chore_pref (house_id, resident_id, alpha_chore_id, beta_chore_id, preference)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (house_id, resident_id, alpha_chore_id, beta_chore_id) DO UPDATE
				SET preference = excluded.preference
			`, houseID, residentID, p.AlphaChoreID, p.BetaChoreID, p.Preference)
			if err != nil {
				return fmt.Errorf("failed to upsert chore preference: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// GetChorePreferences returns every stored preference of the house.
func GetChorePreferences(ctx context.Context, q db.Querier, houseID string) ([]models.ChorePreference, error) {
	return queryChorePreferences(ctx, q, `
		SELECT resident_id, alpha_chore_id, beta_chore_id, preference
		FROM chore_pref
		WHERE house_id = $1
		ORDER BY resident_id, alpha_chore_id, beta_chore_id
	`, houseID)
}

// GetActiveChorePreferences returns the preferences that count toward the
// rankings at now: active residents who have been activated, over active
// chores.
func GetActiveChorePreferences(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.ChorePreference, error) {
	return queryChorePreferences(ctx, q, `
		SELECT p.resident_id, p.alpha_chore_id, p.beta_chore_id, p.preference
		FROM chore_pref p
		JOIN chore a ON a.id = p.alpha_chore_id
		JOIN chore b ON b.id = p.beta_chore_id
		JOIN resident r ON r.id = p.resident_id
		WHERE p.house_id = $1
		  AND r.active = $2 AND r.active_at <= $3
		  AND a.active = $2 AND b.active = $2
		ORDER BY p.resident_id, p.alpha_chore_id, p.beta_chore_id
	`, houseID, true, db.ToMillis(now))
}

func queryChorePreferences(ctx context.Context, q db.Querier, query string, args ...any) ([]models.ChorePreference, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chore preferences: %w", err)
	}
	defer rows.Close()

	prefs := []models.ChorePreference{}
	for rows.Next() {
		var p models.ChorePreference
		if err := rows.Scan(&p.ResidentID, &p.AlphaChoreID, &p.BetaChoreID, &p.Preference); err != nil {
			return nil, fmt.Errorf("failed to scan chore preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chore preferences: %w", err)
	}
	return prefs, nil
}

// MergeChorePreferences overlays updates onto current, keyed by resident
// and chore pair.
func MergeChorePreferences(current, updates []models.ChorePreference) []models.ChorePreference {
	type key struct{ resident, alpha, beta string }

	merged := slices.Clone(current)
	index := make(map[key]int, len(merged))
	for i, p := range merged {
		index[key{p.ResidentID, p.AlphaChoreID, p.BetaChoreID}] = i
	}
	for _, p := range updates {
		k := key{p.ResidentID, p.AlphaChoreID, p.BetaChoreID}
		if i, ok := index[k]; ok {
			merged[i] = p
			continue
		}
		index[k] = len(merged)
		merged = append(merged, p)
	}
	return merged
}

// GetCurrentChoreRankings ranks the active chores by the active preferences.
func (s *Service) GetCurrentChoreRankings(ctx context.Context, houseID string, now time.Time) ([]models.ChoreRanking, error) {
	return s.currentChoreRankings(ctx, s.db, houseID, now)
}

func (s *Service) currentChoreRankings(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.ChoreRanking, error) {
	prefs, err := GetActiveChorePreferences(ctx, q, houseID, now)
	if err != nil {
		return nil, err
	}
	return s.GetChoreRankings(ctx, q, houseID, now, prefs)
}

// GetProposedChoreRankings previews the rankings if the resident's
// preferences were set to prefs.
func (s *Service) GetProposedChoreRankings(ctx context.Context, houseID, residentID string, prefs []models.OrientedChorePreference, now time.Time) ([]models.ChoreRanking, error) {
	updates, err := NormalizeChorePreferences(ctx, s.db, houseID, residentID, prefs)
	if err != nil {
		return nil, err
	}
	current, err := GetActiveChorePreferences(ctx, s.db, houseID, now)
	if err != nil {
		return nil, err
	}
	return s.GetChoreRankings(ctx, s.db, houseID, now, MergeChorePreferences(current, updates))
}

// GetChoreRankings runs the ranker over the active chores, highest first.
// Every voting resident contributes an implicit preference of 1/2n to each
// pair, keeping unranked pairs connected.
func (s *Service) GetChoreRankings(ctx context.Context, q db.Querier, houseID string, now time.Time, prefs []models.ChorePreference) ([]models.ChoreRanking, error) {
	chores, err := GetChores(ctx, q, houseID)
	if err != nil {
		return nil, err
	}
	if len(chores) <= 1 {
		rankings := make([]models.ChoreRanking, 0, len(chores))
		for _, chore := range chores {
			rankings = append(rankings, models.ChoreRanking{ID: chore.ID, Name: chore.Name, Ranking: 1})
		}
		return rankings, nil
	}

	residents, err := admin.CountVotingResidents(ctx, q, houseID, now)
	if err != nil {
		return nil, err
	}
	implicitPref := 0.0
	if residents > 0 {
		implicitPref = 1 / float64(residents) / 2
	}

	ids := make([]string, 0, len(chores))
	for _, chore := range chores {
		ids = append(ids, chore.ID)
	}
	edges := make([]power.Edge[string], 0, len(prefs))
	for _, p := range prefs {
		edges = append(edges, power.Edge[string]{Alpha: p.AlphaChoreID, Beta: p.BetaChoreID, Preference: p.Preference})
	}

	ranking, err := power.Rank(ids, edges, power.Options{
		Participants: residents,
		ImplicitPref: implicitPref,
		Damping:      s.cfg.DampingFactor,
	})
	if errors.Is(err, power.ErrInvalidPreference) {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPreference, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rank chores: %w", err)
	}

	rankings := make([]models.ChoreRanking, 0, len(chores))
	for _, chore := range chores {
		rankings = append(rankings, models.ChoreRanking{ID: chore.ID, Name: chore.Name, Ranking: ranking[chore.ID]})
	}
	slices.SortFunc(rankings, func(a, b models.ChoreRanking) int {
		if c := cmp.Compare(b.Ranking, a.Ranking); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rankings, nil
}
