// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package hearts keeps the heart ledger: an append-only list of signed
entries per resident whose sum is the resident's balance.

Entries are written by four processes:

  - regen: a baseline credit on initialisation, then a monthly nudge toward
    the baseline.
  - challenge: a poll-backed accusation, costing the loser the stake.
  - karma: a monthly bonus for the residents ranked highest by karma.
  - penalty: a monthly debit for chore shortfalls, written by package chores.

Monthly entries carry the start of their month in PeriodStart, and the
ledger is unique per resident, kind and period, so repeated triggers write
nothing new.
*/
package hearts
