// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package power

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrTooFewItems       = errors.New("cannot rank fewer than two items")
	ErrInvalidDamping    = errors.New("damping must be in (0, 1]")
	ErrInvalidPreference = errors.New("invalid preference")
)

// Defaults used when an Options field is left at its zero value.
const (
	DefaultDamping       = 1.0
	DefaultEpsilon       = 0.001
	DefaultMaxIterations = 1000
)

// Edge is a canonical pairwise preference between two items.
// Alpha must sort before Beta. Preference above 0.5 favors Alpha.
type Edge[T cmp.Ordered] struct {
	Alpha      T
	Beta       T
	Preference float64
}

// Options tunes a ranking run
type Options struct {
	// Participants is the number of people whose implicit neutral
	// preference seeds every pair.
	Participants int
	// ImplicitPref is the weight each participant contributes to an
	// unexpressed pair.
	ImplicitPref float64
	// Damping mixes the stochastic matrix with the uniform matrix; 1 means none.
	Damping       float64
	Epsilon       float64
	MaxIterations int
}

// Ranking maps each item to its share of the total priority.
type Ranking[T cmp.Ordered] map[T]float64

// Sorted returns the items in descending order of weight, ties broken by id.
func (r Ranking[T]) Sorted() []T {
	items := make([]T, 0, len(r))
	for item := range r {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b T) int {
		if c := cmp.Compare(r[b], r[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return items
}

// Rank converts pairwise preferences into a normalized priority
// distribution using the power method.
func Rank[T cmp.Ordered](items []T, edges []Edge[T], opts Options) (Ranking[T], error) {
	labels := slices.Clone(items)
	slices.Sort(labels)
	labels = slices.Compact(labels)
	if len(labels) < 2 {
		return nil, ErrTooFewItems
	}

	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	matrix, err := toMatrix(labels, edges, opts)
	if err != nil {
		return nil, err
	}

	weights := powerMethod(matrix, opts.Damping, opts.Epsilon, opts.MaxIterations)

	ranking := make(Ranking[T], len(labels))
	for ix, item := range labels {
		ranking[item] = weights[ix]
	}
	return ranking, nil
}

func (o Options) withDefaults() (Options, error) {
	if o.Damping == 0 {
		o.Damping = DefaultDamping
	}
	if o.Damping < 0 || o.Damping > 1 || math.IsNaN(o.Damping) {
		return o, ErrInvalidDamping
	}
	if o.Epsilon <= 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Participants < 0 {
		o.Participants = 0
	}
	if o.ImplicitPref < 0 || math.IsNaN(o.ImplicitPref) {
		o.ImplicitPref = 0
	}
	return o, nil
}

// toMatrix builds the flow matrix. Row i holds the flow out of item i.
func toMatrix[T cmp.Ordered](labels []T, edges []Edge[T], opts Options) ([][]float64, error) {
	n := len(labels)
	index := make(map[T]int, n)
	for ix, item := range labels {
		index[item] = ix
	}

	seed := opts.ImplicitPref * float64(opts.Participants)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			if i != j {
				matrix[i][j] = seed
			}
		}
	}

	for _, e := range edges {
		if e.Preference < 0 || e.Preference > 1 || math.IsNaN(e.Preference) {
			return nil, fmt.Errorf("%w: value %v outside [0, 1]", ErrInvalidPreference, e.Preference)
		}
		if !(e.Alpha < e.Beta) {
			return nil, fmt.Errorf("%w: %v must sort before %v", ErrInvalidPreference, e.Alpha, e.Beta)
		}
		alphaIx, okAlpha := index[e.Alpha]
		betaIx, okBeta := index[e.Beta]
		if !okAlpha || !okBeta {
			// Preferences over retired items no longer count
			continue
		}
		matrix[betaIx][alphaIx] += e.Preference - opts.ImplicitPref
		matrix[alphaIx][betaIx] += (1 - e.Preference) - opts.ImplicitPref
	}

	// More explicit edges on a pair than participants can push a cell negative
	for i := range matrix {
		for j := range matrix[i] {
			if matrix[i][j] < 0 {
				matrix[i][j] = 0
			}
		}
	}

	// Diagonal holds the column sums
	colSums := make([]float64, n)
	for i := range matrix {
		for j := range matrix[i] {
			colSums[j] += matrix[i][j]
		}
	}
	for ix, sum := range colSums {
		matrix[ix][ix] = sum
	}

	return matrix, nil
}

func powerMethod(matrix [][]float64, d, epsilon float64, nIter int) []float64 {
	n := len(matrix)

	// Row-normalize, then damp towards the uniform matrix
	stochastic := make([][]float64, n)
	for i, row := range matrix {
		stochastic[i] = make([]float64, n)
		rowSum := sum(row)
		for j, x := range row {
			p := 1.0 / float64(n)
			if rowSum > 0 {
				p = x / rowSum
			}
			stochastic[i][j] = d*p + (1-d)/float64(n)
		}
	}

	prev := make([]float64, n)
	for i := range prev {
		prev[i] = 1.0 / float64(n)
	}

	// prev always holds the latest iterate; next is scratch
	next := make([]float64, n)
	for iter := 0; iter < nIter; iter++ {
		clear(next)
		for i, weight := range prev {
			for j, p := range stochastic[i] {
				next[j] += weight * p
			}
		}
		converged := distance(next, prev) < epsilon
		prev, next = next, prev
		if converged {
			break
		}
	}

	total := sum(prev)
	if total > 0 {
		for i := range prev {
			prev[i] /= total
		}
	}
	return prev
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func distance(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		diff := a[i] - b[i]
		total += diff * diff
	}
	return math.Sqrt(total)
}
