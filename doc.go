// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the chorewheel API server.

chorewheel runs a household chore economy. Residents rank chores against
each other, chores accrue points hourly in proportion to their ranking, and
claims on those points are confirmed by a poll of housemates. Hearts track
standing in the house: they regenerate monthly, are lost through upheld
challenges or missed chore quotas, and are earned back through karma.

# Starting the Server

The server reads a .env file if present, then environment variables or CLI
flags:

	DATABASE_URL=chorewheel.db HOUSE_KEY_SALT=... VOTER_SALT=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - HOUSE_KEY_SALT (--house-salt): Secret for house key HMAC
  - VOTER_SALT (--voter-salt): Secret for hashing voter identities

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - CHOREWHEEL_*: Economy parameters, see cliparse.Economy
  - CHOREWHEEL_OTEL_ENDPOINT: OTLP/HTTP endpoint for traces

# Architecture

  - power: Weighted power-iteration ranking
  - polls: Anonymous yay/nay polls with minimum votes
  - chores: Preferences, value accrual, claims, breaks, penalties, proposals
  - hearts: Heart ledger, challenges, karma
  - admin: Houses and residents
  - handlers, router, middleware: JSON trigger API
  - db, cliparse, auth, calendar, metrics, telemetry: Supporting packages

See package documentation for each component.
*/
package main
