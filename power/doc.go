// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package power ranks items from pairwise preferences.

# Model

Each Edge says how strongly participants prefer Alpha over Beta. Rank builds
an n×n flow matrix where every off-diagonal cell starts at
ImplicitPref × Participants, so pairs nobody voted on still carry a neutral
flow and the graph stays connected. Explicit edges replace part of that
neutral flow:

	flow[beta][alpha] += preference - implicit
	flow[alpha][beta] += (1 - preference) - implicit

The diagonal is set to the column sums, rows are normalized into a
stochastic matrix, and damping mixes in the uniform matrix:

	M' = d·M + (1-d)/n · J

The stationary vector is found by power iteration from the uniform vector
until successive iterates differ by less than Epsilon (L2).

# Usage

Rank is generic over the item id, so the same code ranks chores by priority
and residents by karma:

	ranking, err := power.Rank(choreIDs, edges, power.Options{
		Participants: 3,
		ImplicitPref: 1.0 / 6,
		Damping:      0.99,
	})

Weights always sum to 1. With no edges the ranking is uniform.
*/
package power
