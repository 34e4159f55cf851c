// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Timestamps are UTC unix milliseconds. Metadata columns hold JSON objects.
const schema = `
-- Houses
CREATE TABLE IF NOT EXISTS house (
    id TEXT PRIMARY KEY,
    metadata TEXT NOT NULL DEFAULT '{}',
    chores_valued_at BIGINT
);

-- Residents
CREATE TABLE IF NOT EXISTS resident (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    active_at BIGINT,
    exempt_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_resident_house_id ON resident(house_id);

-- Polls
CREATE TABLE IF NOT EXISTS poll (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    start_time BIGINT NOT NULL,
    end_time BIGINT NOT NULL,
    min_votes INTEGER NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_poll_house_id ON poll(house_id);

-- Poll Votes (vote: 1 yay, 0 nay, NULL cancelled)
CREATE TABLE IF NOT EXISTS poll_vote (
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    hashed_voter_id TEXT NOT NULL,
    submitted_at BIGINT NOT NULL,
    vote SMALLINT,
    PRIMARY KEY (poll_id, hashed_voter_id)
);

-- Chores
CREATE TABLE IF NOT EXISTS chore (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    UNIQUE (house_id, name)
);

-- Chore Preferences
CREATE TABLE IF NOT EXISTS chore_pref (
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    resident_id TEXT NOT NULL REFERENCES resident(id) ON DELETE CASCADE,
    alpha_chore_id TEXT NOT NULL REFERENCES chore(id) ON DELETE CASCADE,
    beta_chore_id TEXT NOT NULL REFERENCES chore(id) ON DELETE CASCADE,
    preference DOUBLE PRECISION NOT NULL CHECK (preference >= 0 AND preference <= 1),
    PRIMARY KEY (house_id, resident_id, alpha_chore_id, beta_chore_id),
    CHECK (alpha_chore_id < beta_chore_id)
);

-- Chore Values (special chores have no chore_id, their name is in metadata)
CREATE TABLE IF NOT EXISTS chore_value (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    chore_id TEXT REFERENCES chore(id) ON DELETE CASCADE,
    valued_at BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chore_value_chore ON chore_value(chore_id, valued_at);
CREATE INDEX IF NOT EXISTS idx_chore_value_house ON chore_value(house_id, valued_at);

-- Chore Claims
CREATE TABLE IF NOT EXISTS chore_claim (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    chore_id TEXT REFERENCES chore(id) ON DELETE CASCADE,
    chore_value_id TEXT REFERENCES chore_value(id) ON DELETE CASCADE,
    claimed_by TEXT,
    claimed_at BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    poll_id TEXT REFERENCES poll(id),
    resolved_at BIGINT,
    valid BOOLEAN,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chore_claim_chore ON chore_claim(chore_id, claimed_at);
CREATE INDEX IF NOT EXISTS idx_chore_claim_claimed_by ON chore_claim(claimed_by, claimed_at);
CREATE INDEX IF NOT EXISTS idx_chore_claim_value ON chore_claim(chore_value_id);

-- Chore Breaks
CREATE TABLE IF NOT EXISTS chore_break (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    resident_id TEXT NOT NULL REFERENCES resident(id) ON DELETE CASCADE,
    start_date BIGINT NOT NULL,
    end_date BIGINT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chore_break_resident ON chore_break(resident_id);

-- Chore Proposals
CREATE TABLE IF NOT EXISTS chore_proposal (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    proposed_by TEXT NOT NULL,
    chore_id TEXT REFERENCES chore(id) ON DELETE CASCADE,
    name TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    poll_id TEXT NOT NULL REFERENCES poll(id),
    resolved_at BIGINT
);

-- Things
CREATE TABLE IF NOT EXISTS thing (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    UNIQUE (house_id, type, name)
);

-- Thing Buys (loads are positive and have no poll, buys are negative)
CREATE TABLE IF NOT EXISTS thing_buy (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    thing_id TEXT REFERENCES thing(id) ON DELETE CASCADE,
    account TEXT NOT NULL,
    bought_by TEXT NOT NULL,
    bought_at BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    poll_id TEXT REFERENCES poll(id),
    resolved_at BIGINT,
    valid BOOLEAN,
    fulfilled_by TEXT,
    fulfilled_at BIGINT,
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_thing_buy_account ON thing_buy(house_id, account, bought_at);

-- Thing Proposals
CREATE TABLE IF NOT EXISTS thing_proposal (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    proposed_by TEXT NOT NULL,
    thing_id TEXT REFERENCES thing(id) ON DELETE CASCADE,
    type TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    value DOUBLE PRECISION NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    poll_id TEXT NOT NULL REFERENCES poll(id),
    resolved_at BIGINT
);

-- Hearts (period_start is NULL for challenge entries so they never collide)
CREATE TABLE IF NOT EXISTS heart (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    resident_id TEXT NOT NULL REFERENCES resident(id) ON DELETE CASCADE,
    kind TEXT NOT NULL CHECK (kind IN ('regen', 'challenge', 'karma', 'penalty')),
    generated_at BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    period_start BIGINT,
    metadata TEXT NOT NULL DEFAULT '{}',
    UNIQUE (resident_id, kind, period_start)
);

CREATE INDEX IF NOT EXISTS idx_heart_resident ON heart(resident_id, generated_at);

-- Heart Challenges
CREATE TABLE IF NOT EXISTS heart_challenge (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    challenger_id TEXT NOT NULL REFERENCES resident(id) ON DELETE CASCADE,
    challengee_id TEXT NOT NULL REFERENCES resident(id) ON DELETE CASCADE,
    challenged_at BIGINT NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    poll_id TEXT NOT NULL REFERENCES poll(id),
    resolved_at BIGINT,
    heart_id TEXT REFERENCES heart(id),
    metadata TEXT NOT NULL DEFAULT '{}'
);

-- Karma
CREATE TABLE IF NOT EXISTS heart_karma (
    id TEXT PRIMARY KEY,
    house_id TEXT NOT NULL REFERENCES house(id) ON DELETE CASCADE,
    giver_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    given_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_heart_karma_house ON heart_karma(house_id, given_at);
`
