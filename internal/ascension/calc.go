package ascension

import (
	"fmt"
	"math"
)

// RateFunc converts an upstream house count into the number of houses that
// can ascend to the next tier at the given rate.
type RateFunc func(upstream, rate float64) float64

// PopRate is the conversion used everywhere in the application:
// floor(upstream * rate). popRate(100, 0.5) == 50.
func PopRate(upstream, rate float64) float64 {
	return math.Floor(upstream * rate)
}

// Cell is one grid entry. Both fields are nil when the originating level
// does not reach the tier.
type Cell struct {
	Houses *float64 `json:"houses"`
	Pop    *float64 `json:"pop"`
}

// Set reports whether the cell carries a value.
func (c Cell) Set() bool {
	return c.Houses != nil
}

func newCell(houses, capacity float64) Cell {
	pop := houses * capacity
	return Cell{Houses: &houses, Pop: &pop}
}

// TierDistribution is the column of cells for one tier, indexed by
// originating level (lowest first).
type TierDistribution struct {
	Key  TierKey `json:"key"`
	Name string  `json:"name"`
	Dist []Cell  `json:"dist"`
}

// Compute builds the distribution grid for one chain.
//
// Row i of the working matrix is an independent projection that starts again
// from the chain's base population; only slots 0..i are filled. Each slot
// consumes houses from the slot below it. The occident chain adds the beggar
// bonus at slot 1 and the envoy bonus at slot 2. A slot never takes more than
// its upstream slot holds.
func Compute(settings Settings, chain Chain, state State, rate RateFunc) ([]TierDistribution, error) {
	if !chain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	if rate == nil {
		return nil, &ConfigError{Field: "rate", Reason: "no conversion function"}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	keys := settings.ChainKeys(chain)
	levels := len(keys)
	tiers := make([]Tier, levels)
	for i, k := range keys {
		tiers[i] = settings.Ascension[k]
	}

	bonusCitizens := bonus(state.Beggars, settings.Bonuses.BeggarLvl, state.BeggarLvl)
	bonusLicenses := bonus(state.Envoys, settings.Bonuses.EnvoyLvl, state.EnvoyLvl)

	out := make([]TierDistribution, levels)
	for i, k := range keys {
		out[i] = TierDistribution{Key: k, Name: tiers[i].Name, Dist: make([]Cell, levels)}
	}

	for level := 0; level < levels; level++ {
		row := make([]float64, level+1)
		row[0] = state.Population(chain)

		for slot := 1; slot <= level; slot++ {
			upstream := row[slot-1]
			v := rate(upstream, tiers[slot].Rate)
			if chain == Occident {
				switch slot {
				case 1:
					v += bonusCitizens
				case 2:
					v += bonusLicenses
				}
			}
			if upstream-v < 0 {
				v = upstream
			}
			row[slot-1] -= v
			row[slot] = v
		}

		for slot, houses := range row {
			out[slot].Dist[level] = newCell(houses, tiers[slot].Capacity)
		}
	}

	return out, nil
}

// bonus is floor(count / divisor). A zero, missing or non-finite divisor
// yields 0, the same as a zero quotient.
func bonus(count float64, table map[int]float64, lvl int) float64 {
	b := math.Floor(count / table[lvl])
	if math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	return b
}

// Pyramid holds both chains computed from one state.
type Pyramid struct {
	Occident []TierDistribution `json:"occident"`
	Orient   []TierDistribution `json:"orient"`
}

// ComputePyramid runs Compute once per chain.
func ComputePyramid(settings Settings, state State, rate RateFunc) (Pyramid, error) {
	var p Pyramid
	var err error
	if p.Occident, err = Compute(settings, Occident, state, rate); err != nil {
		return Pyramid{}, fmt.Errorf("occident: %w", err)
	}
	if p.Orient, err = Compute(settings, Orient, state, rate); err != nil {
		return Pyramid{}, fmt.Errorf("orient: %w", err)
	}
	return p, nil
}

// Reversed returns a copy with every Dist ordered highest level first.
func Reversed(dists []TierDistribution) []TierDistribution {
	out := make([]TierDistribution, len(dists))
	for i, d := range dists {
		rev := make([]Cell, len(d.Dist))
		for j, c := range d.Dist {
			rev[len(d.Dist)-1-j] = c
		}
		out[i] = TierDistribution{Key: d.Key, Name: d.Name, Dist: rev}
	}
	return out
}

// Reversed returns the pyramid in display order.
func (p Pyramid) Reversed() Pyramid {
	return Pyramid{Occident: Reversed(p.Occident), Orient: Reversed(p.Orient)}
}

// LevelHeaders returns column headers for a reversed grid: "Level n" down to "Level 1".
func LevelHeaders(levels int) []string {
	headers := make([]string, levels)
	for i := range headers {
		headers[i] = fmt.Sprintf("Level %d", levels-i)
	}
	return headers
}
