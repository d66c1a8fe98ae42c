// Package ascension computes the ascension pyramid: how a chain's base
// population distributes across its housing tiers once each tier's
// conversion rate and the beggar/envoy bonuses are applied.
package ascension

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Chain names one of the two parallel tier orderings.
type Chain string

const (
	Occident Chain = "occident"
	Orient   Chain = "orient"
)

// Chains lists every chain in display order.
var Chains = []Chain{Occident, Orient}

// Valid reports whether c is a known chain.
func (c Chain) Valid() bool {
	return c == Occident || c == Orient
}

// TierKey identifies a tier in the settings table (e.g. "peasants").
type TierKey string

// Tier is one housing level of a chain.
type Tier struct {
	Type     Chain   `yaml:"type" json:"type"`
	Level    int     `yaml:"level" json:"level"` // Negative excludes the tier from the pyramid
	Rate     float64 `yaml:"rate" json:"rate"`
	Capacity float64 `yaml:"capacity" json:"capacity"` // Residents per house
	Name     string  `yaml:"name" json:"name"`
}

// Bonuses maps a selected bonus level to the divisor applied to the
// matching counter.
type Bonuses struct {
	BeggarLvl map[int]float64 `yaml:"beggarLvl" json:"beggarLvl"`
	EnvoyLvl  map[int]float64 `yaml:"envoyLvl" json:"envoyLvl"`
}

// Settings is the static population configuration.
type Settings struct {
	Ascension map[TierKey]Tier `yaml:"ascension" json:"ascension"`
	Bonuses   Bonuses          `yaml:"bonuses" json:"bonuses"`
}

// ErrUnknownChain is returned when a chain other than occident/orient is requested.
var ErrUnknownChain = errors.New("unknown chain")

// ConfigError reports an unusable settings entry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("population settings: %s: %s", e.Field, e.Reason)
}

// InputError reports an ascension state that cannot be accepted.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("ascension state: %s: %s", e.Field, e.Reason)
}

// Validate checks every tier entry. A tier without a chain or name is
// treated as a missing configuration rather than silently producing empty cells.
func (s Settings) Validate() error {
	if len(s.Ascension) == 0 {
		return &ConfigError{Field: "ascension", Reason: "no tiers configured"}
	}
	for key, t := range s.Ascension {
		field := "ascension." + string(key)
		switch {
		case key == "":
			return &ConfigError{Field: "ascension", Reason: "empty tier key"}
		case !t.Type.Valid():
			return &ConfigError{Field: field + ".type", Reason: fmt.Sprintf("unknown chain %q", t.Type)}
		case t.Name == "":
			return &ConfigError{Field: field + ".name", Reason: "missing"}
		case !finiteNonNegative(t.Rate):
			return &ConfigError{Field: field + ".rate", Reason: fmt.Sprintf("invalid value %v", t.Rate)}
		case !finiteNonNegative(t.Capacity):
			return &ConfigError{Field: field + ".capacity", Reason: fmt.Sprintf("invalid value %v", t.Capacity)}
		}
	}
	return nil
}

// ChainKeys returns the keys of the chain's active tiers, ascending by level.
// Equal levels fall back to key order so the result never depends on map order.
func (s Settings) ChainKeys(chain Chain) []TierKey {
	var keys []TierKey
	for key, t := range s.Ascension {
		if t.Type == chain && t.Level >= 0 {
			keys = append(keys, key)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		li, lj := s.Ascension[keys[i]].Level, s.Ascension[keys[j]].Level
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// State holds the per-island inputs that drive the pyramid.
type State struct {
	Occident  float64 `json:"occident" db:"occident"`
	Orient    float64 `json:"orient" db:"orient"`
	Beggars   float64 `json:"beggars" db:"beggars"`
	BeggarLvl int     `json:"beggarLvl" db:"beggar_lvl"`
	Envoys    float64 `json:"envoys" db:"envoys"`
	EnvoyLvl  int     `json:"envoyLvl" db:"envoy_lvl"`
}

// NewState returns the zero state an island starts with on first view.
func NewState() State {
	return State{}
}

// Population returns the base population entered for a chain.
func (st State) Population(chain Chain) float64 {
	if chain == Orient {
		return st.Orient
	}
	return st.Occident
}

// Validate checks counts and bonus level selections against the settings.
func (st State) Validate(settings Settings) error {
	counts := []struct {
		field string
		v     float64
	}{
		{"occident", st.Occident},
		{"orient", st.Orient},
		{"beggars", st.Beggars},
		{"envoys", st.Envoys},
	}
	for _, c := range counts {
		if !finiteNonNegative(c.v) {
			return &InputError{Field: c.field, Reason: fmt.Sprintf("must be a non-negative number, got %v", c.v)}
		}
	}
	if _, ok := settings.Bonuses.BeggarLvl[st.BeggarLvl]; !ok {
		return &InputError{Field: "beggarLvl", Reason: fmt.Sprintf("unknown level %d", st.BeggarLvl)}
	}
	if _, ok := settings.Bonuses.EnvoyLvl[st.EnvoyLvl]; !ok {
		return &InputError{Field: "envoyLvl", Reason: fmt.Sprintf("unknown level %d", st.EnvoyLvl)}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
