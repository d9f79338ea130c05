// Package decision recommends whether, and what, non-player content to
// introduce into a session. Engines read history and return
// recommendations; they never change stored state.
package decision

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Rand is the randomness an engine draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// NewRand returns a goroutine-safe source. Seed 0 seeds from the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// Factor is one named input to a decision and its contribution to the
// probability.
type Factor struct {
	Name         string  `json:"name"`
	Value        string  `json:"value"`
	Contribution float64 `json:"contribution"`
	Reason       string  `json:"reason"`
}

// Clamp01 bounds v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScoreToProbability adds the factor contributions to base and clamps the
// total to [0,1].
func ScoreToProbability(base float64, factors []Factor) float64 {
	total := base
	for _, f := range factors {
		total += f.Contribution
	}
	return Clamp01(total)
}

// Decide draws once against p. Probabilities of 0 and 1 decide without a
// draw; roll is -1 then.
func Decide(r Rand, p float64) (yes bool, roll float64) {
	switch {
	case p <= 0:
		return false, -1
	case p >= 1:
		return true, -1
	}
	roll = r.Float64()
	return roll < p, roll
}

// WeightedChoice picks a key with probability proportional to its score
// plus baseline. Negative scores count as zero. When every weight is zero
// the pick is uniform. An empty map yields "".
func WeightedChoice(r Rand, scores map[string]int, baseline int) string {
	if len(scores) == 0 {
		return ""
	}

	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0
	weights := make([]int, len(keys))
	for i, k := range keys {
		w := scores[k]
		if w < 0 {
			w = 0
		}
		w += baseline
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return keys[r.Intn(len(keys))]
	}

	draw := r.Intn(total)
	for i, w := range weights {
		if draw < w {
			return keys[i]
		}
		draw -= w
	}
	return keys[len(keys)-1]
}

// Momentum is a coarse reading of how fast the story is moving.
type Momentum string

const (
	MomentumStalled Momentum = "stalled"
	MomentumSlow    Momentum = "slow"
	MomentumSteady  Momentum = "steady"
	MomentumFast    Momentum = "fast"
)

// MomentumFor buckets the number of turns since anything last happened.
func MomentumFor(turnsSinceActivity int, seen bool) Momentum {
	switch {
	case !seen || turnsSinceActivity >= 10:
		return MomentumStalled
	case turnsSinceActivity >= 6:
		return MomentumSlow
	case turnsSinceActivity >= 2:
		return MomentumSteady
	default:
		return MomentumFast
	}
}

// Frequency buckets how often something happened in the recent window.
type Frequency string

const (
	FrequencyLow       Frequency = "low"
	FrequencyNormal    Frequency = "normal"
	FrequencyHigh      Frequency = "high"
	FrequencyExcessive Frequency = "excessive"
)

// FrequencyFor buckets an occurrence count.
func FrequencyFor(count int) Frequency {
	switch {
	case count <= 0:
		return FrequencyLow
	case count <= 2:
		return FrequencyNormal
	case count <= 4:
		return FrequencyHigh
	default:
		return FrequencyExcessive
	}
}

var (
	momentumContribution = map[Momentum]float64{
		MomentumStalled: 0.2,
		MomentumSlow:    0.1,
		MomentumSteady:  0,
		MomentumFast:    -0.15,
	}
	frequencyContribution = map[Frequency]float64{
		FrequencyLow:       0.1,
		FrequencyNormal:    0,
		FrequencyHigh:      -0.15,
		FrequencyExcessive: -0.4,
	}
)
