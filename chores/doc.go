// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package chores runs the chore side of the economy.

Residents state pairwise preferences between chores. The preferences are
ranked with package power into a priority distribution, and every hour the
house emits PointsPerResident points per working resident per month,
split across chores by that distribution. Values accumulate on a chore
until someone claims it.

A claim snapshots the chore's accrued value and opens a poll. While the
claim is pending the chore reads as zero. Once the poll closes the claim is
resolved exactly once: a valid claim keeps the value as the claimant's
points, a rejected claim gives the value back to the chore.

At the start of each month, residents who earned less than they owed for
the previous month lose hearts in proportion to the shortfall. Breaks and
late activation reduce what a resident owes.

Chores themselves are added, edited and removed through proposals, which
are also settled by poll. A special chore is a one-off job valued by
proposal: its value is withheld from the month's emission and paid in full
to the single resident whose claim passes.

A reset zeroes every voting resident's points for the month and claims
away every accrued chore value, starting the house over.
*/
package chores
