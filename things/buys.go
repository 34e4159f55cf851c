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
	"github.com/dustin/go-humanize"
)

const buyColumns = `id, house_id, thing_id, account, bought_by, bought_at, value, poll_id,
	resolved_at, valid, fulfilled_by, fulfilled_at, metadata`

// LoadAccount adds money to an account. A load has no poll and is valid on
// creation.
func (s *Service) LoadAccount(ctx context.Context, houseID, account, loadedBy string, value float64, now time.Time) (buy models.ThingBuy, err error) {
	if value <= 0 {
		return models.ThingBuy{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "things.LoadAccount", houseID)
	defer func() { telemetry.End(span, err) }()

	loadedAt := db.FromMillis(db.ToMillis(now))
	valid := true
	buy = models.ThingBuy{
		ID:         auth.NewID(),
		HouseID:    houseID,
		Account:    account,
		BoughtBy:   loadedBy,
		BoughtAt:   loadedAt,
		Value:      value,
		ResolvedAt: &loadedAt,
		Valid:      &valid,
		Metadata:   map[string]any{},
	}
	if err := insertBuy(ctx, s.db, buy); err != nil {
		return models.ThingBuy{}, err
	}

	slog.Info("account loaded", "house_id", houseID, "account", account,
		"resident_id", loadedBy, "value", humanize.FormatFloat("#,###.##", value))
	return buy, nil
}

// GetAccountBalance sums the valid loads and buys of an account up to now.
func GetAccountBalance(ctx context.Context, q db.Querier, houseID, account string, now time.Time) (float64, error) {
	var balance float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0)
		FROM thing_buy
		WHERE house_id = $1 AND account = $2 AND valid = $3 AND bought_at <= $4
	`, houseID, account, true, db.ToMillis(now)).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get account balance: %w", err)
	}
	return balance, nil
}

// GetActiveAccounts lists the accounts with money left, by name.
func GetActiveAccounts(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.AccountBalance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account, SUM(value)
		FROM thing_buy
		WHERE house_id = $1 AND valid = $2 AND bought_at <= $3
		GROUP BY account
		HAVING SUM(value) > 0
		ORDER BY account
	`, houseID, true, db.ToMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.AccountBalance{}
	for rows.Next() {
		var a models.AccountBalance
		if err := rows.Scan(&a.Account, &a.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return accounts, nil
}

// buyMinVotes asks one vote per ThingsMinVotesScalar of price, capped at
// ThingsMaxPct of residents. A special buy needs at least
// ThingsMinPctSpecial of residents.
func (s *Service) buyMinVotes(price float64, residents int, special bool) int {
	maxVotes := int(math.Ceil(s.cfg.ThingsMaxPct * float64(residents)))
	scaled := int(math.Ceil(math.Abs(price) / s.cfg.ThingsMinVotesScalar))
	if special {
		scaled = max(scaled, int(math.Ceil(s.cfg.ThingsMinPctSpecial*float64(residents))))
	}
	return min(maxVotes, scaled)
}

// BuyThing spends quantity times the thing's price from an account. The
// buyer's yay is cast with the poll.
func (s *Service) BuyThing(ctx context.Context, houseID, thingID, boughtBy, account string, quantity int, now time.Time) (buy models.ThingBuy, poll models.Poll, err error) {
	if quantity < 1 {
		return models.ThingBuy{}, models.Poll{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "things.BuyThing", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		thing, err := GetThing(ctx, tx, thingID)
		if err != nil {
			return err
		}
		if thing.HouseID != houseID || !thing.Active {
			return models.ErrThingNotFound
		}

		buy = models.ThingBuy{
			HouseID:  houseID,
			ThingID:  &thing.ID,
			Account:  account,
			BoughtBy: boughtBy,
			Value:    -thing.Value * float64(quantity),
			Metadata: map[string]any{"quantity": quantity},
		}
		poll, closedEarly, err = s.openBuy(ctx, tx, &buy, s.cfg.ThingsPollLength, false, now)
		return err
	})
	if err != nil {
		return models.ThingBuy{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("thing bought", "house_id", houseID, "buy_id", buy.ID, "thing_id", thingID,
		"account", account, "value", humanize.FormatFloat("#,###.##", buy.Value), "min_votes", poll.MinVotes)
	return buy, poll, nil
}

// BuySpecialThing spends price on something outside the catalogue.
func (s *Service) BuySpecialThing(ctx context.Context, houseID, boughtBy, account string, price float64, title, details string, now time.Time) (buy models.ThingBuy, poll models.Poll, err error) {
	if price <= 0 {
		return models.ThingBuy{}, models.Poll{}, models.ErrInvalidValue
	}

	ctx, span := telemetry.Start(ctx, "things.BuySpecialThing", houseID)
	defer func() { telemetry.End(span, err) }()

	closedEarly := false
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		buy = models.ThingBuy{
			HouseID:  houseID,
			Account:  account,
			BoughtBy: boughtBy,
			Value:    -price,
			Metadata: map[string]any{"title": title, "details": details, "special": true},
		}
		poll, closedEarly, err = s.openBuy(ctx, tx, &buy, s.cfg.ThingsSpecialPollLength, true, now)
		return err
	})
	if err != nil {
		return models.ThingBuy{}, models.Poll{}, err
	}

	s.polls.ObserveVote(poll.ID, models.VoteYay, closedEarly, now)
	slog.Info("special thing bought", "house_id", houseID, "buy_id", buy.ID,
		"account", account, "value", humanize.FormatFloat("#,###.##", buy.Value), "min_votes", poll.MinVotes)
	return buy, poll, nil
}

// openBuy checks the buyer and the account balance, then stores the buy with
// its poll and the buyer's yay
func (s *Service) openBuy(ctx context.Context, tx *sql.Tx, buy *models.ThingBuy, length time.Duration, special bool, now time.Time) (models.Poll, bool, error) {
	voting, err := admin.IsVotingResident(ctx, tx, buy.HouseID, buy.BoughtBy, now)
	if err != nil {
		return models.Poll{}, false, err
	}
	if !voting {
		return models.Poll{}, false, models.ErrInvalidVoter
	}

	balance, err := GetAccountBalance(ctx, tx, buy.HouseID, buy.Account, now)
	if err != nil {
		return models.Poll{}, false, err
	}
	if balance < -buy.Value {
		return models.Poll{}, false, fmt.Errorf("%w: %s has %s", models.ErrInsufficientFunds,
			buy.Account, humanize.FormatFloat("#,###.##", balance))
	}

	residents, err := admin.CountVotingResidents(ctx, tx, buy.HouseID, now)
	if err != nil {
		return models.Poll{}, false, err
	}
	poll, err := s.polls.Create(ctx, tx, buy.HouseID, now, length, s.buyMinVotes(buy.Value, residents, special))
	if err != nil {
		return models.Poll{}, false, err
	}

	buy.ID = auth.NewID()
	buy.BoughtAt = poll.StartTime
	buy.PollID = &poll.ID
	if err := insertBuy(ctx, tx, *buy); err != nil {
		return models.Poll{}, false, err
	}

	closedEarly, err := s.polls.RecordOpenerYay(ctx, tx, &poll, buy.BoughtBy, now)
	if err != nil {
		return models.Poll{}, false, err
	}
	return poll, closedEarly, nil
}

func insertBuy(ctx context.Context, q db.Querier, buy models.ThingBuy) error {
	raw, err := db.EncodeMetadata(buy.Metadata)
	if err != nil {
		return err
	}

	var valid sql.NullBool
	if buy.Valid != nil {
		valid = sql.NullBool{Bool: *buy.Valid, Valid: true}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO thing_buy (`+buyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, buy.ID, buy.HouseID, db.ToNullString(buy.ThingID), buy.Account, buy.BoughtBy,
		db.ToMillis(buy.BoughtAt), buy.Value, db.ToNullString(buy.PollID),
		db.ToNullMillis(buy.ResolvedAt), valid, db.ToNullString(buy.FulfilledBy),
		db.ToNullMillis(buy.FulfilledAt), raw)
	if err != nil {
		return fmt.Errorf("failed to insert buy: %w", err)
	}
	return nil
}

func GetThingBuy(ctx context.Context, q db.Querier, buyID string) (models.ThingBuy, error) {
	return scanBuy(q.QueryRowContext(ctx, `
		SELECT `+buyColumns+`
		FROM thing_buy
		WHERE id = $1
	`, buyID))
}

func scanBuy(row scanner) (models.ThingBuy, error) {
	var b models.ThingBuy
	var thingID, pollID, fulfilledBy sql.NullString
	var boughtAt int64
	var resolvedAt, fulfilledAt sql.NullInt64
	var valid sql.NullBool
	var raw string
	err := row.Scan(&b.ID, &b.HouseID, &thingID, &b.Account, &b.BoughtBy, &boughtAt, &b.Value,
		&pollID, &resolvedAt, &valid, &fulfilledBy, &fulfilledAt, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ThingBuy{}, models.ErrThingBuyNotFound
	}
	if err != nil {
		return models.ThingBuy{}, fmt.Errorf("failed to scan buy: %w", err)
	}
	b.ThingID = db.FromNullString(thingID)
	b.BoughtAt = db.FromMillis(boughtAt)
	b.PollID = db.FromNullString(pollID)
	b.ResolvedAt = db.FromNullMillis(resolvedAt)
	b.Valid = db.FromNullBool(valid)
	b.FulfilledBy = db.FromNullString(fulfilledBy)
	b.FulfilledAt = db.FromNullMillis(fulfilledAt)
	if b.Metadata, err = db.DecodeMetadata(raw); err != nil {
		return models.ThingBuy{}, err
	}
	return b, nil
}

func queryBuys(ctx context.Context, q db.Querier, query string, args ...any) ([]models.ThingBuy, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buys: %w", err)
	}
	defer rows.Close()

	buys := []models.ThingBuy{}
	for rows.Next() {
		b, err := scanBuy(rows)
		if err != nil {
			return nil, err
		}
		buys = append(buys, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read buys: %w", err)
	}
	return buys, nil
}

// ResolveThingBuy settles a buy once its poll has closed. Resolving a
// resolved buy is a no-op and reports false.
func (s *Service) ResolveThingBuy(ctx context.Context, buyID string, now time.Time) (buy models.ThingBuy, resolved bool, err error) {
	ctx, span := telemetry.Start(ctx, "things.ResolveThingBuy", "")
	defer func() { telemetry.End(span, err) }()

	var valid bool
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		buy, err = GetThingBuy(ctx, tx, buyID)
		if err != nil {
			return err
		}
		if buy.ResolvedAt != nil || buy.PollID == nil {
			return nil
		}

		valid, err = s.polls.IsValid(ctx, tx, *buy.PollID, now)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE thing_buy SET resolved_at = $1, valid = $2
			WHERE id = $3 AND resolved_at IS NULL
		`, db.ToMillis(now), valid, buyID)
		if err != nil {
			return fmt.Errorf("failed to resolve buy: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to resolve buy: %w", err)
		}
		if n == 0 {
			return nil
		}

		resolvedAt := db.FromMillis(db.ToMillis(now))
		buy.ResolvedAt = &resolvedAt
		buy.Valid = &valid
		resolved = true
		return nil
	})
	if err != nil {
		return models.ThingBuy{}, false, err
	}

	if resolved {
		metrics.Resolutions.WithLabelValues("buy", metrics.Outcome(valid)).Inc()
		slog.Info("buy resolved", "house_id", buy.HouseID, "buy_id", buyID, "valid", valid)
	}
	return buy, resolved, nil
}

// ResolveThingBuys resolves every closed, pending buy of the house in order
// of poll end time.
func (s *Service) ResolveThingBuys(ctx context.Context, houseID string, now time.Time) ([]models.ThingBuy, error) {
	ids, err := s.resolvableIDs(ctx, `
		SELECT b.id
		FROM thing_buy b
		JOIN poll p ON p.id = b.poll_id
		WHERE b.house_id = $1 AND b.resolved_at IS NULL AND p.end_time <= $2
		ORDER BY p.end_time, b.id
	`, houseID, now)
	if err != nil {
		return nil, err
	}

	buys := []models.ThingBuy{}
	for _, id := range ids {
		buy, resolved, err := s.ResolveThingBuy(ctx, id, now)
		if errors.Is(err, models.ErrPollNotClosed) {
			continue
		}
		if err != nil {
			return buys, err
		}
		if resolved {
			buys = append(buys, buy)
		}
	}
	return buys, nil
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

// GetUnfulfilledThingBuys lists the valid buys bought by now that nobody
// has fulfilled, oldest first. Loads are left out.
func GetUnfulfilledThingBuys(ctx context.Context, q db.Querier, houseID string, now time.Time) ([]models.ThingBuy, error) {
	return queryBuys(ctx, q, `
		SELECT `+buyColumns+`
		FROM thing_buy
		WHERE house_id = $1 AND bought_at <= $2 AND valid = $3
		  AND fulfilled_at IS NULL AND poll_id IS NOT NULL
		ORDER BY bought_at, id
	`, houseID, db.ToMillis(now), true)
}

// FulfillThingBuy marks a valid buy as delivered. A buy is fulfilled once.
func FulfillThingBuy(ctx context.Context, q db.Querier, houseID, buyID, fulfilledBy string, now time.Time) (models.ThingBuy, error) {
	buy, err := GetThingBuy(ctx, q, buyID)
	if err != nil {
		return models.ThingBuy{}, err
	}
	if buy.HouseID != houseID {
		return models.ThingBuy{}, models.ErrThingBuyNotFound
	}
	if buy.PollID == nil || buy.Valid == nil || !*buy.Valid {
		return models.ThingBuy{}, fmt.Errorf("%w: buy is not a valid purchase", models.ErrThingBuyFulfilled)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE thing_buy SET fulfilled_by = $1, fulfilled_at = $2
		WHERE id = $3 AND fulfilled_at IS NULL
	`, fulfilledBy, db.ToMillis(now), buyID)
	if err != nil {
		return models.ThingBuy{}, fmt.Errorf("failed to fulfill buy: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.ThingBuy{}, fmt.Errorf("failed to fulfill buy: %w", err)
	} else if n == 0 {
		return models.ThingBuy{}, models.ErrThingBuyFulfilled
	}

	return GetThingBuy(ctx, q, buyID)
}
