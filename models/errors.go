// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "errors"

// Expected conditions surfaced to callers. Batch resolvers routinely hit the
// "already resolved" and "not closed" errors and skip them.
var (
	ErrPollClosed                 = errors.New("poll has closed")
	ErrPollNotClosed              = errors.New("poll not closed")
	ErrPollNotFound               = errors.New("poll not found")
	ErrProposalAlreadyResolved    = errors.New("proposal already resolved")
	ErrChallengeAlreadyResolved   = errors.New("challenge already resolved")
	ErrActiveChallengeExists      = errors.New("active challenge exists")
	ErrInvalidVoter               = errors.New("invalid voter for poll")
	ErrInvalidVote                = errors.New("invalid vote")
	ErrZeroValueClaim             = errors.New("cannot claim a zero-value chore")
	ErrInsufficientBalanceForGift = errors.New("cannot gift more than the points balance")
	ErrHouseNotFound              = errors.New("house not found")
	ErrResidentNotFound           = errors.New("resident not found")
	ErrChoreNotFound              = errors.New("chore not found")
	ErrClaimNotFound              = errors.New("claim not found")
	ErrChallengeNotFound          = errors.New("challenge not found")
	ErrProposalNotFound           = errors.New("proposal not found")
	ErrInvalidPreference          = errors.New("invalid chore preference")
	ErrInvalidProposal            = errors.New("proposal must include either a chore or a name")
	ErrInvalidBreak               = errors.New("break must end after it starts")
	ErrInvalidValue               = errors.New("value must be positive")
	ErrBreakTooShort              = errors.New("break is too short")
	ErrSpecialValueTooLarge       = errors.New("special chore value exceeds the points left this month")
	ErrSpecialChoreClaimed        = errors.New("special chore already claimed")
	ErrThingNotFound              = errors.New("thing not found")
	ErrThingBuyNotFound           = errors.New("buy not found")
	ErrThingBuyFulfilled          = errors.New("buy already fulfilled")
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInvalidThingProposal       = errors.New("proposal must include either a thing or a type and name")
)
