// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics defines the Prometheus collectors for the economy and
// serves them from a dedicated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector in this package.
var Registry = prometheus.NewRegistry()

var PointsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "chores",
	Name:      "points_emitted",
	Help:      "Points appended to chore values.",
})

// ValueUpdates counts accrual runs by result: emitted, idle, no_residents,
// exhausted, no_chores or lost_race.
var ValueUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "chores",
	Name:      "value_updates",
	Help:      "Chore value update runs by result.",
}, []string{"result"})

var VotesSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "polls",
	Name:      "votes_submitted",
	Help:      "Votes submitted by value.",
}, []string{"vote"})

var PollsClosedEarly = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "polls",
	Name:      "closed_early",
	Help:      "Polls closed early because every voting resident voted.",
})

// Resolutions counts resolved polls by kind and outcome.
var Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "resolver",
	Name:      "resolutions",
	Help:      "Resolved polls by kind and outcome.",
}, []string{"kind", "outcome"})

var HeartsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chorewheel",
	Subsystem: "hearts",
	Name:      "generated",
	Help:      "Heart ledger entries written by kind.",
}, []string{"kind"})

var RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "chorewheel",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Trigger API latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "status"})

func init() {
	Registry.MustRegister(
		PointsEmitted,
		ValueUpdates,
		VotesSubmitted,
		PollsClosedEarly,
		Resolutions,
		HeartsGenerated,
		RequestDuration,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome labels a resolution as passed or failed.
func Outcome(valid bool) string {
	if valid {
		return "passed"
	}
	return "failed"
}
