// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the domain records, request and response types, and
sentinel errors shared by the services and the API.

# Domain Types

Ledgers and their inputs:

  - House, Resident: bookkeeping keyed by platform ids
  - Chore, ChorePreference, ChoreRanking: what gets valued and how
  - ChoreValue: append-only point emission per chore
  - ChoreClaim, ChoreBreak, ChoreProposal, ChoreStats: how points are earned
  - Poll, PollCounts, Vote: time-boxed quorum votes
  - Heart, HeartBalance, HeartChallenge, HeartKarma: accountability points

# Request Types

Every trigger embeds TriggerRequest, whose optional "now" lets a caller
replay an event at the time it happened:

	{"now": "2024-06-01T12:00:00Z", "resident_id": "U123", "vote": "yay"}

# Errors

Expected conditions are sentinel errors matched with errors.Is:

	if errors.Is(err, models.ErrPollNotClosed) {
		// try again later
	}

They are raised synchronously and are not bugs. The API maps each to a 4xx
status.

# Constants

Votes:

	VoteYay    = "yay"
	VoteNay    = "nay"
	VoteCancel = "cancel"

Heart kinds:

	HeartRegen         = "regen"
	HeartKindChallenge = "challenge"
	HeartKindKarma     = "karma"
	HeartPenalty       = "penalty"
*/
package models
