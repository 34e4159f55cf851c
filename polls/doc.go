// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package polls implements time-boxed quorum votes shared by chore claims,
chore proposals and heart challenges.

A poll is open from StartTime until EndTime. Voting residents of the poll's
house may vote yay, nay or cancel; each voter keeps a single row, keyed by a
salted hash of their resident id, and later votes replace earlier ones. A
cancelled vote is stored as NULL so it still counts as turnout.

A poll passes when it has at least MinVotes yays and more yays than nays.
Validity is only defined once the poll has closed. With early close enabled,
the poll closes as soon as every voting resident has a vote on record.

Polls never resolve anything themselves. Claim, proposal and challenge
resolvers read IsValid and guard their own state transitions.
*/
package polls
