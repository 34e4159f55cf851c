// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Economy holds the parameters of the point and heart economy.
type Economy struct {
	// Chores
	PointsPerResident        float64       `env:"CHOREWHEEL_POINTS_PER_RESIDENT" envDefault:"100"`
	InflationFactor          float64       `env:"CHOREWHEEL_INFLATION_FACTOR" envDefault:"1.0"`
	BootstrapDuration        time.Duration `env:"CHOREWHEEL_BOOTSTRAP_DURATION" envDefault:"72h"`
	DampingFactor            float64       `env:"CHOREWHEEL_DAMPING_FACTOR" envDefault:"0.99"`
	PingInterval             float64       `env:"CHOREWHEEL_PING_INTERVAL" envDefault:"50"`
	ChoresPollLength         time.Duration `env:"CHOREWHEEL_CHORES_POLL_LENGTH" envDefault:"24h"`
	ChoresMinVotes           int           `env:"CHOREWHEEL_CHORES_MIN_VOTES" envDefault:"2"`
	ChoreMinVotesThreshold   float64       `env:"CHOREWHEEL_CHORE_MIN_VOTES_THRESHOLD" envDefault:"10"`
	ChoresProposalPollLength time.Duration `env:"CHOREWHEEL_CHORES_PROPOSAL_POLL_LENGTH" envDefault:"48h"`
	ChoreProposalPct         float64       `env:"CHOREWHEEL_CHORE_PROPOSAL_PCT" envDefault:"0.4"`
	PenaltyDelay             time.Duration `env:"CHOREWHEEL_PENALTY_DELAY" envDefault:"30h"`
	PenaltyIncrement         float64       `env:"CHOREWHEEL_PENALTY_INCREMENT" envDefault:"5"`
	PenaltyUnit              float64       `env:"CHOREWHEEL_PENALTY_UNIT" envDefault:"0.5"`
	BreakMinDays             int           `env:"CHOREWHEEL_BREAK_MIN_DAYS" envDefault:"3"`

	// Special chores
	SpecialChoreVoteIncrement      float64       `env:"CHOREWHEEL_SPECIAL_CHORE_VOTE_INCREMENT" envDefault:"10"`
	ChoreSpecialPctMin             float64       `env:"CHOREWHEEL_CHORE_SPECIAL_PCT_MIN" envDefault:"0.3"`
	ChoreSpecialPctMax             float64       `env:"CHOREWHEEL_CHORE_SPECIAL_PCT_MAX" envDefault:"0.6"`
	SpecialChoreProposalPollLength time.Duration `env:"CHOREWHEEL_SPECIAL_CHORE_PROPOSAL_POLL_LENGTH" envDefault:"24h"`
	SpecialChoreMaxValueProportion float64       `env:"CHOREWHEEL_SPECIAL_CHORE_MAX_VALUE_PROPORTION" envDefault:"1"`

	// Hearts
	HeartsBaseline        float64       `env:"CHOREWHEEL_HEARTS_BASELINE" envDefault:"5"`
	HeartsRegenAmount     float64       `env:"CHOREWHEEL_HEARTS_REGEN_AMOUNT" envDefault:"0.25"`
	HeartsFadeAmount      float64       `env:"CHOREWHEEL_HEARTS_FADE_AMOUNT" envDefault:"0.25"`
	HeartsPollLength      time.Duration `env:"CHOREWHEEL_HEARTS_POLL_LENGTH" envDefault:"72h"`
	HeartsMinPctInitial   float64       `env:"CHOREWHEEL_HEARTS_MIN_PCT_INITIAL" envDefault:"0.4"`
	HeartsMinPctCritical  float64       `env:"CHOREWHEEL_HEARTS_MIN_PCT_CRITICAL" envDefault:"0.7"`
	HeartsCriticalNum     float64       `env:"CHOREWHEEL_HEARTS_CRITICAL_NUM" envDefault:"2"`
	KarmaDelay            time.Duration `env:"CHOREWHEEL_KARMA_DELAY" envDefault:"3h"`
	KarmaProportion       int           `env:"CHOREWHEEL_KARMA_PROPORTION" envDefault:"3"`
	HeartsMaxBase         int           `env:"CHOREWHEEL_HEARTS_MAX_BASE" envDefault:"7"`
	HeartsMaxLimit        int           `env:"CHOREWHEEL_HEARTS_MAX_LIMIT" envDefault:"10"`
	HeartsKarmaGrowthRate int           `env:"CHOREWHEEL_HEARTS_KARMA_GROWTH_RATE" envDefault:"4"`

	// Things
	ThingsPollLength         time.Duration `env:"CHOREWHEEL_THINGS_POLL_LENGTH" envDefault:"6h"`
	ThingsSpecialPollLength  time.Duration `env:"CHOREWHEEL_THINGS_SPECIAL_POLL_LENGTH" envDefault:"24h"`
	ThingsMinVotesScalar     float64       `env:"CHOREWHEEL_THINGS_MIN_VOTES_SCALAR" envDefault:"50"`
	ThingsMinPctSpecial      float64       `env:"CHOREWHEEL_THINGS_MIN_PCT_SPECIAL" envDefault:"0.3"`
	ThingsMaxPct             float64       `env:"CHOREWHEEL_THINGS_MAX_PCT" envDefault:"0.6"`
	ThingsProposalPollLength time.Duration `env:"CHOREWHEEL_THINGS_PROPOSAL_POLL_LENGTH" envDefault:"48h"`
	ThingsProposalPct        float64       `env:"CHOREWHEEL_THINGS_PROPOSAL_PCT" envDefault:"0.4"`

	// Polls
	EarlyClose bool `env:"CHOREWHEEL_EARLY_CLOSE" envDefault:"true"`
}

// ParseEconomy reads the economy from CHOREWHEEL_* environment variables,
// falling back to defaults for anything unset.
func ParseEconomy() (Economy, error) {
	e, err := env.ParseAs[Economy]()
	if err != nil {
		return Economy{}, fmt.Errorf("parse env: %w", err)
	}
	return e, e.validate()
}

// DefaultEconomy returns the defaults, ignoring the environment.
func DefaultEconomy() Economy {
	e, err := env.ParseAsWithOptions[Economy](env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Sprintf("invalid economy defaults: %v", err))
	}
	return e
}

func (e Economy) validate() error {
	switch {
	case e.DampingFactor <= 0 || e.DampingFactor > 1:
		return fmt.Errorf("damping factor %v outside (0, 1]", e.DampingFactor)
	case e.PointsPerResident < 0:
		return fmt.Errorf("points per resident must not be negative")
	case e.InflationFactor <= 0:
		return fmt.Errorf("inflation factor must be positive")
	case e.PenaltyIncrement <= 0:
		return fmt.Errorf("penalty increment must be positive")
	case e.KarmaProportion <= 0 || e.HeartsKarmaGrowthRate <= 0:
		return fmt.Errorf("karma proportion and growth rate must be positive")
	case e.BreakMinDays < 0:
		return fmt.Errorf("break min days must not be negative")
	case e.SpecialChoreVoteIncrement <= 0 || e.ThingsMinVotesScalar <= 0:
		return fmt.Errorf("vote increments must be positive")
	case e.ChoreSpecialPctMin > e.ChoreSpecialPctMax:
		return fmt.Errorf("special chore vote range [%v, %v] is empty", e.ChoreSpecialPctMin, e.ChoreSpecialPctMax)
	case e.SpecialChoreMaxValueProportion <= 0:
		return fmt.Errorf("special chore max value proportion must be positive")
	}
	return nil
}
