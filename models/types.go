// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Vote values accepted by polls
type Vote string

const (
	VoteYay    Vote = "yay"
	VoteNay    Vote = "nay"
	VoteCancel Vote = "cancel"
)

// Valid reports whether v is one of the known vote values.
func (v Vote) Valid() bool {
	return v == VoteYay || v == VoteNay || v == VoteCancel
}

// Heart ledger entry kinds
type HeartKind string

const (
	HeartRegen         HeartKind = "regen"
	HeartKindChallenge HeartKind = "challenge"
	HeartKindKarma     HeartKind = "karma"
	HeartPenalty       HeartKind = "penalty"
)

// Request types

type AddHouseRequest struct {
	HouseID  string         `json:"house_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Now is optional on every trigger; the server clock is used when it is nil.
type TriggerRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

type AddChoreRequest struct {
	TriggerRequest
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SetChorePreferencesRequest struct {
	TriggerRequest
	ResidentID  string                    `json:"resident_id"`
	Preferences []OrientedChorePreference `json:"preferences"`
}

// OrientedChorePreference says that value flows from SourceChoreID to
// TargetChoreID with the given strength.
type OrientedChorePreference struct {
	TargetChoreID string  `json:"target_chore_id"`
	SourceChoreID string  `json:"source_chore_id"`
	Preference    float64 `json:"preference"`
}

type ClaimChoreRequest struct {
	TriggerRequest
	ResidentID string `json:"resident_id"`
	TimeSpent  int    `json:"time_spent,omitempty"`
}

type CreateChoreProposalRequest struct {
	TriggerRequest
	ResidentID string         `json:"resident_id"`
	ChoreID    *string        `json:"chore_id,omitempty"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Active     bool           `json:"active"`
}

type CreateSpecialChoreProposalRequest struct {
	TriggerRequest
	ResidentID  string  `json:"resident_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

type AddChoreBreakRequest struct {
	TriggerRequest
	ResidentID   string    `json:"resident_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Circumstance string    `json:"circumstance"`
}

type GiftChorePointsRequest struct {
	TriggerRequest
	ResidentID  string  `json:"resident_id"`
	RecipientID string  `json:"recipient_id"`
	Value       float64 `json:"value"`
}

type IssueChallengeRequest struct {
	TriggerRequest
	ResidentID   string  `json:"resident_id"`
	ChallengeeID string  `json:"challengee_id"`
	Value        float64 `json:"value"`
	Circumstance string  `json:"circumstance"`
}

type GiveKarmaRequest struct {
	TriggerRequest
	ResidentID string `json:"resident_id"`
	Text       string `json:"text"`
}

type CreateThingProposalRequest struct {
	TriggerRequest
	ResidentID string         `json:"resident_id"`
	ThingID    *string        `json:"thing_id,omitempty"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Value      float64        `json:"value"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Active     bool           `json:"active"`
}

type AddThingRequest struct {
	TriggerRequest
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Value    float64        `json:"value"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type LoadAccountRequest struct {
	TriggerRequest
	ResidentID string  `json:"resident_id"`
	Account    string  `json:"account"`
	Value      float64 `json:"value"`
}

type BuyThingRequest struct {
	TriggerRequest
	ResidentID string `json:"resident_id"`
	ThingID    string `json:"thing_id"`
	Account    string `json:"account"`
	Quantity   int    `json:"quantity"`
}

type BuySpecialThingRequest struct {
	TriggerRequest
	ResidentID string  `json:"resident_id"`
	Account    string  `json:"account"`
	Price      float64 `json:"price"`
	Title      string  `json:"title"`
	Details    string  `json:"details"`
}

type FulfillThingBuyRequest struct {
	TriggerRequest
	ResidentID string `json:"resident_id"`
}

type SubmitVoteRequest struct {
	TriggerRequest
	ResidentID string `json:"resident_id"`
	Vote       Vote   `json:"vote"`
}

// Response types

type AddHouseResponse struct {
	HouseID  string `json:"house_id"`
	HouseKey string `json:"house_key"`
}

type ResidentResponse struct {
	Resident Resident `json:"resident"`
	Hearts   []Heart  `json:"hearts,omitempty"`
}

type ChoresResponse struct {
	Chores []Chore `json:"chores"`
}

type ChorePreferencesResponse struct {
	Preferences []ChorePreference `json:"preferences"`
}

type ChoreBreaksResponse struct {
	Breaks []ChoreBreak `json:"breaks"`
}

type ChoreStatsResponse struct {
	Stats []ChoreStats `json:"stats"`
}

type GiftResponse struct {
	Transfers []ChoreClaim `json:"transfers"`
}

type ChoreValuesResponse struct {
	ChoreValues []CurrentChoreValue `json:"chore_values"`
}

type ChoreRankingsResponse struct {
	Rankings []ChoreRanking `json:"rankings"`
}

type ClaimChoreResponse struct {
	Claim ChoreClaim `json:"claim"`
	Poll  Poll       `json:"poll"`
}

type ChoreProposalResponse struct {
	Proposal ChoreProposal `json:"proposal"`
	Poll     Poll          `json:"poll"`
}

type ResetResponse struct {
	Claims []ChoreClaim `json:"claims"`
}

type ThingsResponse struct {
	Things []Thing `json:"things"`
}

type AccountsResponse struct {
	Accounts []AccountBalance `json:"accounts"`
}

type ThingBuyResponse struct {
	Buy  ThingBuy `json:"buy"`
	Poll Poll     `json:"poll"`
}

type ThingBuysResponse struct {
	Buys []ThingBuy `json:"buys"`
}

type ThingProposalResponse struct {
	Proposal ThingProposal `json:"proposal"`
	Poll     Poll          `json:"poll"`
}

type ChallengeResponse struct {
	Challenge HeartChallenge `json:"challenge"`
	Poll      Poll           `json:"poll"`
}

type KarmaResponse struct {
	Karma []HeartKarma `json:"karma"`
}

type HeartsResponse struct {
	Hearts []HeartBalance `json:"hearts"`
}

type HeartEntriesResponse struct {
	ResidentID string  `json:"resident_id"`
	Hearts     float64 `json:"hearts"`
	Entries    []Heart `json:"entries"`
}

type ResolveResponse struct {
	Claims         []ChoreClaim     `json:"claims"`
	Proposals      []ChoreProposal  `json:"proposals"`
	Challenges     []HeartChallenge `json:"challenges"`
	Buys           []ThingBuy       `json:"buys"`
	ThingProposals []ThingProposal  `json:"thing_proposals"`
}

type MonthlyResponse struct {
	Regenerated []Heart `json:"regenerated"`
	Karma       []Heart `json:"karma"`
	Penalties   []Heart `json:"penalties"`
}

type PollResponse struct {
	Poll   Poll       `json:"poll"`
	Counts PollCounts `json:"counts"`
}

// Domain types

type House struct {
	ID             string         `json:"id"`
	Metadata       map[string]any `json:"metadata"`
	ChoresValuedAt *time.Time     `json:"chores_valued_at,omitempty"`
}

type Resident struct {
	ID       string     `json:"id"`
	HouseID  string     `json:"house_id"`
	Active   bool       `json:"active"`
	ActiveAt *time.Time `json:"active_at,omitempty"`
	ExemptAt *time.Time `json:"exempt_at,omitempty"`
}

// IsVoting reports whether the resident can vote in houseID at now.
func (r Resident) IsVoting(houseID string, now time.Time) bool {
	return r.HouseID == houseID && r.Active &&
		r.ActiveAt != nil && !r.ActiveAt.After(now) &&
		(r.ExemptAt == nil || r.ExemptAt.After(now))
}

type Chore struct {
	ID       string         `json:"id"`
	HouseID  string         `json:"house_id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
	Active   bool           `json:"active"`
}

// ChorePreference is stored in canonical form: AlphaChoreID < BetaChoreID,
// and Preference > 0.5 favors alpha.
type ChorePreference struct {
	ResidentID   string  `json:"resident_id"`
	AlphaChoreID string  `json:"alpha_chore_id"`
	BetaChoreID  string  `json:"beta_chore_id"`
	Preference   float64 `json:"preference"`
}

type ChoreRanking struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Ranking float64 `json:"ranking"`
}

type ChoreValueMetadata struct {
	Ranking           float64 `json:"ranking"`
	EligibleResidents int     `json:"eligible_residents"`
	IntervalScalar    float64 `json:"interval_scalar"`
}

// ChoreValue is an append-only emission of points to a chore.
type ChoreValue struct {
	ID       string             `json:"id"`
	HouseID  string             `json:"house_id"`
	ChoreID  string             `json:"chore_id"`
	ValuedAt time.Time          `json:"valued_at"`
	Value    float64            `json:"value"`
	Metadata ChoreValueMetadata `json:"metadata"`
}

// CurrentChoreValue carries a ChoreValueID instead of a ChoreID for special
// chores.
type CurrentChoreValue struct {
	ChoreID      string  `json:"chore_id,omitempty"`
	ChoreValueID string  `json:"chore_value_id,omitempty"`
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Ping         bool    `json:"ping"`
}

// SpecialChore is a one-off chore whose whole value was emitted at once.
type SpecialChore struct {
	ID          string    `json:"id"`
	HouseID     string    `json:"house_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ValuedAt    time.Time `json:"valued_at"`
	Value       float64   `json:"value"`
}

// ChoreClaim with neither a ChoreID nor a ChoreValueID is a point transfer.
type ChoreClaim struct {
	ID           string         `json:"id"`
	HouseID      string         `json:"house_id"`
	ChoreID      *string        `json:"chore_id,omitempty"`
	ChoreValueID *string        `json:"chore_value_id,omitempty"`
	ClaimedBy    *string        `json:"claimed_by,omitempty"`
	ClaimedAt    time.Time      `json:"claimed_at"`
	Value        float64        `json:"value"`
	PollID       *string        `json:"poll_id,omitempty"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	Valid        *bool          `json:"valid,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

type ChoreBreak struct {
	ID           string    `json:"id"`
	HouseID      string    `json:"house_id"`
	ResidentID   string    `json:"resident_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Circumstance string    `json:"circumstance"`
}

// ChoreProposal adds a chore when ChoreID is nil and edits it otherwise.
type ChoreProposal struct {
	ID         string         `json:"id"`
	HouseID    string         `json:"house_id"`
	ProposedBy string         `json:"proposed_by"`
	ChoreID    *string        `json:"chore_id,omitempty"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata"`
	Active     bool           `json:"active"`
	PollID     string         `json:"poll_id"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

type ChoreStats struct {
	ResidentID    string  `json:"resident_id"`
	PointsEarned  float64 `json:"points_earned"`
	PointsOwed    float64 `json:"points_owed"`
	CompletionPct float64 `json:"completion_pct"`
}

type Thing struct {
	ID       string         `json:"id"`
	HouseID  string         `json:"house_id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Value    float64        `json:"value"`
	Metadata map[string]any `json:"metadata"`
	Active   bool           `json:"active"`
}

// ThingBuy moves money in or out of an account. Loads are positive and
// valid on creation; buys are negative and wait on a poll.
type ThingBuy struct {
	ID          string         `json:"id"`
	HouseID     string         `json:"house_id"`
	ThingID     *string        `json:"thing_id,omitempty"`
	Account     string         `json:"account"`
	BoughtBy    string         `json:"bought_by"`
	BoughtAt    time.Time      `json:"bought_at"`
	Value       float64        `json:"value"`
	PollID      *string        `json:"poll_id,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Valid       *bool          `json:"valid,omitempty"`
	FulfilledBy *string        `json:"fulfilled_by,omitempty"`
	FulfilledAt *time.Time     `json:"fulfilled_at,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type AccountBalance struct {
	Account string  `json:"account"`
	Balance float64 `json:"balance"`
}

// ThingProposal adds a thing when ThingID is nil and edits it otherwise.
type ThingProposal struct {
	ID         string         `json:"id"`
	HouseID    string         `json:"house_id"`
	ProposedBy string         `json:"proposed_by"`
	ThingID    *string        `json:"thing_id,omitempty"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Value      float64        `json:"value"`
	Metadata   map[string]any `json:"metadata"`
	Active     bool           `json:"active"`
	PollID     string         `json:"poll_id"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

type Poll struct {
	ID        string         `json:"id"`
	HouseID   string         `json:"house_id"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	MinVotes  int            `json:"min_votes"`
	Metadata  map[string]any `json:"metadata"`
}

type PollCounts struct {
	Yays int `json:"yays"`
	Nays int `json:"nays"`
}

// Heart is one signed entry in a resident's heart ledger.
type Heart struct {
	ID          string         `json:"id"`
	HouseID     string         `json:"house_id"`
	ResidentID  string         `json:"resident_id"`
	Kind        HeartKind      `json:"kind"`
	GeneratedAt time.Time      `json:"generated_at"`
	Value       float64        `json:"value"`
	PeriodStart *time.Time     `json:"period_start,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type HeartBalance struct {
	ResidentID string  `json:"resident_id"`
	Hearts     float64 `json:"hearts"`
}

type HeartChallenge struct {
	ID           string     `json:"id"`
	HouseID      string     `json:"house_id"`
	ChallengerID string     `json:"challenger_id"`
	ChallengeeID string     `json:"challengee_id"`
	ChallengedAt time.Time  `json:"challenged_at"`
	Value        float64    `json:"value"`
	PollID       string     `json:"poll_id"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	HeartID      *string    `json:"heart_id,omitempty"`
	Circumstance string     `json:"circumstance"`
}

type HeartKarma struct {
	ID         string    `json:"id"`
	HouseID    string    `json:"house_id"`
	GiverID    string    `json:"giver_id"`
	ReceiverID string    `json:"receiver_id"`
	GivenAt    time.Time `json:"given_at"`
}

type KarmaRanking struct {
	ResidentID string  `json:"resident_id"`
	Ranking    float64 `json:"ranking"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
