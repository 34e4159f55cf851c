// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the chorewheel API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - HouseHandler: Houses and resident lifecycle
  - ChoreHandler: Chores, preferences, values, claims, proposals, breaks and gifts
  - HeartHandler: Challenges, karma and heart balances
  - EconomyHandler: Scheduled resolve and monthly triggers
  - PollHandler: Votes and poll state

Handlers are created via constructor functions that accept *sql.DB and Config:

	choreHandler := handlers.NewChoreHandler(db, cfg)

# Time

Every write accepts an optional "now" in its JSON body and reads accept a
?now= query parameter, both RFC 3339. Without one the server clock is used,
so a scheduler can replay missed triggers.

# Claims, Proposals and Challenges

Opening any of the three creates a poll and records the opener's yay:

	POST /houses/{house}/chores/{chore}/claims → ClaimChore
	POST /houses/{house}/chores/proposals      → ProposeChore
	POST /houses/{house}/hearts/challenges     → IssueChallenge

Other residents vote through POST /polls/{poll}/votes. Nothing is applied
until POST /houses/{house}/resolve runs after the poll closes.

# Errors

Domain errors map to statuses in middleware.DomainError; anything unmapped
is logged and returned as a bare 500.
*/
package handlers
