// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database, creates the schema, and holds the column
codecs shared by the services.

# Connecting

Open accepts "postgres" (lib/pq) or "sqlite" (modernc.org/sqlite) and pings
with exponential backoff until the database answers:

	conn, err := db.Open(ctx, db.TypePostgres, url, 30*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.CreateSchema(ctx, conn); err != nil {
		log.Fatal(err)
	}

CreateSchema is safe to call multiple times - uses IF NOT EXISTS for all
tables and indexes. The same statements run on both databases.

# Transactions

Services accept a Querier so lookups can run inside a caller's transaction:

	err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		poll, err := pollSvc.Create(ctx, tx, houseID, now, 24*time.Hour, 1)
		...
	})

# Columns

  - Timestamps are BIGINT UTC milliseconds (ToMillis, FromMillis)
  - Metadata is a JSON object in a TEXT column (EncodeMetadata, DecodeMetadata)
  - poll_vote.vote is 1 (yay), 0 (nay) or NULL (cancelled)

# Tables

	house 1──* resident
	house 1──* chore 1──* chore_value
	chore 1──* chore_claim *──1 poll
	chore_value 0..1──* chore_claim (special chores)
	resident 1──* chore_pref, chore_break, heart
	chore_proposal *──1 poll
	heart_challenge *──1 poll, heart
	poll 1──* poll_vote
	house 1──* heart_karma
	house 1──* thing 1──* thing_buy *──1 poll
	thing_proposal *──1 poll

Exactly-once writes rely on:

  - house.chores_valued_at advanced with a compare-and-set
  - UNIQUE (resident_id, kind, period_start) on heart
  - resolved_at IS NULL guards on claims, proposals, challenges and buys
  - fulfilled_at IS NULL guard on thing buys
*/
package db
