// Package dice rolls polyhedral dice for the gateway's dice relay. Rolls are
// fairness-sensitive, so the roller sits behind an interface: the default
// implementation rolls locally, and an externally audited RNG service can be
// swapped in without touching the handlers.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrMissingDice     = errors.New("dice: at least one dice spec is required")
	ErrInvalidDiceSpec = errors.New("dice: sides and count out of range")
	ErrBadNotation     = errors.New("dice: bad notation")
)

// Ceilings bound the memory one roll request can demand; anything a table
// legitimately rolls sits far below them.
const (
	MaxSpecs        = 10
	MaxCountPerSpec = 100
	MaxSides        = 1000
)

// Spec describes one group of identical dice, e.g. 2d6.
type Spec struct {
	Count int `json:"count"`
	Sides int `json:"sides"`
}

// Roll holds the outcome of one Spec.
type Roll struct {
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

// Result holds the outcome of a whole request. Rolls appear in the same
// order as the specs they came from; Total sums every die rolled.
type Result struct {
	Rolls []Roll `json:"rolls"`
	Total int    `json:"total"`
}

// Roller produces roll results. Implementations must be safe for concurrent
// use by the message handlers.
type Roller interface {
	Roll(specs []Spec) (Result, error)
}

// LocalRoller rolls with an in-process PRNG.
type LocalRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocalRoller creates a roller seeded from the given source. A zero seed
// is replaced by rand's global default seeding.
func NewLocalRoller(seed int64) *LocalRoller {
	src := rand.NewSource(seed)
	return &LocalRoller{rng: rand.New(src)}
}

func (r *LocalRoller) Roll(specs []Spec) (Result, error) {
	if len(specs) == 0 {
		return Result{}, ErrMissingDice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rolls := make([]Roll, 0, len(specs))
	total := 0
	if len(specs) > MaxSpecs {
		return Result{}, ErrInvalidDiceSpec
	}
	for _, spec := range specs {
		if spec.Sides <= 0 || spec.Count <= 0 ||
			spec.Count > MaxCountPerSpec || spec.Sides > MaxSides {
			return Result{}, ErrInvalidDiceSpec
		}

		results := make([]int, spec.Count)
		rollTotal := 0
		for i := 0; i < spec.Count; i++ {
			value := r.rng.Intn(spec.Sides) + 1
			results[i] = value
			rollTotal += value
		}

		rolls = append(rolls, Roll{Sides: spec.Sides, Results: results, Total: rollTotal})
		total += rollTotal
	}

	return Result{Rolls: rolls, Total: total}, nil
}

// ParseNotation parses standard dice notation such as "2d6" or "1d20+2d4".
// A bare count of one may be omitted ("d20" reads as "1d20").
func ParseNotation(notation string) ([]Spec, error) {
	notation = strings.ToLower(strings.ReplaceAll(notation, " ", ""))
	if notation == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadNotation)
	}

	parts := strings.Split(notation, "+")
	if len(parts) > MaxSpecs {
		return nil, fmt.Errorf("%w: too many dice groups", ErrBadNotation)
	}
	specs := make([]Spec, 0, len(parts))
	for _, part := range parts {
		countStr, sidesStr, ok := strings.Cut(part, "d")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadNotation, part)
		}

		count := 1
		if countStr != "" {
			n, err := strconv.Atoi(countStr)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadNotation, part)
			}
			count = n
		}

		sides, err := strconv.Atoi(sidesStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadNotation, part)
		}

		if count <= 0 || sides <= 0 || count > MaxCountPerSpec || sides > MaxSides {
			return nil, fmt.Errorf("%w: %q", ErrBadNotation, part)
		}
		specs = append(specs, Spec{Count: count, Sides: sides})
	}

	return specs, nil
}
