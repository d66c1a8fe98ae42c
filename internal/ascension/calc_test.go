package ascension

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func twoTierSettings() Settings {
	return Settings{
		Ascension: map[TierKey]Tier{
			"a": {Type: Occident, Level: 0, Rate: 1, Capacity: 1, Name: "A"},
			"b": {Type: Occident, Level: 1, Rate: 0.5, Capacity: 2, Name: "B"},
		},
		Bonuses: Bonuses{
			BeggarLvl: map[int]float64{0: 1, 1: 2, 2: 3, 3: 4},
			EnvoyLvl:  map[int]float64{0: 1, 1: 2, 2: 3, 3: 4},
		},
	}
}

func fullSettings() Settings {
	return Settings{
		Ascension: map[TierKey]Tier{
			"peasants":   {Type: Occident, Level: 0, Rate: 1, Capacity: 8, Name: "Peasants"},
			"citizens":   {Type: Occident, Level: 1, Rate: 0.75, Capacity: 15, Name: "Citizens"},
			"patricians": {Type: Occident, Level: 2, Rate: 0.6, Capacity: 25, Name: "Patricians"},
			"noblemen":   {Type: Occident, Level: 3, Rate: 0.5, Capacity: 40, Name: "Noblemen"},
			"beggars":    {Type: Occident, Level: -1, Rate: 0, Capacity: 4, Name: "Beggars"},
			"nomads":     {Type: Orient, Level: 0, Rate: 1, Capacity: 15, Name: "Nomads"},
			"envoys":     {Type: Orient, Level: 1, Rate: 0.5, Capacity: 25, Name: "Envoys"},
		},
		Bonuses: Bonuses{
			BeggarLvl: map[int]float64{0: 20, 1: 15, 2: 10, 3: 5},
			EnvoyLvl:  map[int]float64{0: 20, 1: 15, 2: 10, 3: 5},
		},
	}
}

func houses(t *testing.T, c Cell) float64 {
	t.Helper()
	if c.Houses == nil {
		t.Fatalf("expected houses, got empty cell")
	}
	return *c.Houses
}

func TestCompute_TwoTierScenario(t *testing.T) {
	dist, err := Compute(twoTierSettings(), Occident, State{Occident: 100}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(dist) != 2 || dist[0].Key != "a" || dist[1].Key != "b" {
		t.Fatalf("unexpected tier order: %+v", dist)
	}

	if got := houses(t, dist[0].Dist[0]); got != 100 {
		t.Fatalf("level 0 slot 0 houses = %v, want 100", got)
	}
	if dist[1].Dist[0].Set() {
		t.Fatalf("level 0 must not reach slot 1")
	}
	if got := houses(t, dist[0].Dist[1]); got != 50 {
		t.Fatalf("level 1 slot 0 houses = %v, want 50", got)
	}
	if got := houses(t, dist[1].Dist[1]); got != 50 {
		t.Fatalf("level 1 slot 1 houses = %v, want 50", got)
	}
	if got := *dist[1].Dist[1].Pop; got != 100 {
		t.Fatalf("level 1 slot 1 pop = %v, want 100", got)
	}
}

func TestCompute_BeggarBonusOccidentOnly(t *testing.T) {
	s := twoTierSettings()
	s.Bonuses.BeggarLvl[0] = 5
	s.Ascension["x"] = Tier{Type: Orient, Level: 0, Rate: 1, Capacity: 1, Name: "X"}
	s.Ascension["y"] = Tier{Type: Orient, Level: 1, Rate: 0.5, Capacity: 2, Name: "Y"}

	st := State{Occident: 100, Orient: 100, Beggars: 10, BeggarLvl: 0}

	occ, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute occident: %v", err)
	}
	// floor(10/5) = 2 extra citizens on top of popRate(100, 0.5).
	if got := houses(t, occ[1].Dist[1]); got != 52 {
		t.Fatalf("occident slot 1 = %v, want 52", got)
	}
	if got := houses(t, occ[0].Dist[1]); got != 48 {
		t.Fatalf("occident slot 0 remainder = %v, want 48", got)
	}

	ori, err := Compute(s, Orient, st, PopRate)
	if err != nil {
		t.Fatalf("Compute orient: %v", err)
	}
	if got := houses(t, ori[1].Dist[1]); got != 50 {
		t.Fatalf("orient slot 1 = %v, want 50 (bonus must not apply)", got)
	}
}

func TestCompute_EnvoyBonusAtSlotTwo(t *testing.T) {
	s := fullSettings()
	st := State{Occident: 1000, Envoys: 40, EnvoyLvl: 3} // floor(40/5) = 8

	withBonus, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	st.Envoys = 0
	without, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if d := houses(t, withBonus[2].Dist[2]) - houses(t, without[2].Dist[2]); d != 8 {
		t.Fatalf("envoy bonus delta at slot 2 = %v, want 8", d)
	}
	if houses(t, withBonus[1].Dist[1]) != houses(t, without[1].Dist[1]) {
		t.Fatalf("envoy bonus leaked into slot 1")
	}
}

func TestCompute_ClampToUpstream(t *testing.T) {
	s := twoTierSettings()
	s.Bonuses.BeggarLvl[0] = 1
	st := State{Occident: 10, Beggars: 1000}

	dist, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := houses(t, dist[1].Dist[1]); got != 10 {
		t.Fatalf("clamped slot 1 = %v, want 10", got)
	}
	if got := houses(t, dist[0].Dist[1]); got != 0 {
		t.Fatalf("upstream remainder = %v, want 0", got)
	}
	if got := *dist[0].Dist[1].Pop; got != 0 {
		t.Fatalf("upstream pop = %v, want 0", got)
	}
}

func TestCompute_ClampAppliesToOrient(t *testing.T) {
	s := Settings{
		Ascension: map[TierKey]Tier{
			"x": {Type: Orient, Level: 0, Rate: 1, Capacity: 1, Name: "X"},
			"y": {Type: Orient, Level: 1, Rate: 1.5, Capacity: 2, Name: "Y"},
		},
		Bonuses: twoTierSettings().Bonuses,
	}

	dist, err := Compute(s, Orient, State{Orient: 10}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// floor(10*1.5) = 15 exceeds the 10 available and is clamped.
	if got := houses(t, dist[1].Dist[1]); got != 10 {
		t.Fatalf("orient slot 1 = %v, want 10", got)
	}
	if got := houses(t, dist[0].Dist[1]); got != 0 {
		t.Fatalf("orient slot 0 remainder = %v, want 0", got)
	}
}

func TestCompute_RowsAreIndependent(t *testing.T) {
	st := State{Occident: 400}
	dist, err := Compute(fullSettings(), Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Every row starts from the full base population: slot 0 plus everything
	// that ascended out of it adds back up to 400.
	for level := range dist {
		var sum float64
		for slot := 0; slot <= level; slot++ {
			sum += houses(t, dist[slot].Dist[level])
		}
		if sum != 400 {
			t.Fatalf("row %d sums to %v, want 400", level, sum)
		}
	}
}

func TestCompute_Properties(t *testing.T) {
	s := fullSettings()
	states := []State{
		{},
		{Occident: 1, Orient: 1},
		{Occident: 523, Orient: 77, Beggars: 31, BeggarLvl: 2, Envoys: 17, EnvoyLvl: 1},
		{Occident: 3, Beggars: 500, BeggarLvl: 3, Envoys: 500, EnvoyLvl: 3},
	}

	for _, st := range states {
		for _, chain := range Chains {
			dist, err := Compute(s, chain, st, PopRate)
			if err != nil {
				t.Fatalf("Compute(%s, %+v): %v", chain, st, err)
			}
			for slot, td := range dist {
				capacity := s.Ascension[td.Key].Capacity
				for level, c := range td.Dist {
					if (c.Houses == nil) != (c.Pop == nil) {
						t.Fatalf("%s %s level %d: houses/pop nil mismatch", chain, td.Key, level)
					}
					if slot > level {
						if c.Set() {
							t.Fatalf("%s %s level %d: slot beyond row is set", chain, td.Key, level)
						}
						continue
					}
					if !c.Set() {
						t.Fatalf("%s %s level %d: slot within row is empty", chain, td.Key, level)
					}
					if *c.Houses < 0 {
						t.Fatalf("%s %s level %d: negative houses %v", chain, td.Key, level, *c.Houses)
					}
					if *c.Pop != *c.Houses*capacity {
						t.Fatalf("%s %s level %d: pop %v != %v*%v", chain, td.Key, level, *c.Pop, *c.Houses, capacity)
					}
				}
			}
		}
	}
}

func TestCompute_OrientIgnoresBonusInputs(t *testing.T) {
	s := fullSettings()
	base, err := Compute(s, Orient, State{Orient: 250}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	other, err := Compute(s, Orient, State{Orient: 250, Beggars: 99, BeggarLvl: 3, Envoys: 99, EnvoyLvl: 2}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(base, other) {
		t.Fatalf("orient output changed with bonus inputs")
	}
}

func TestCompute_Idempotent(t *testing.T) {
	s := fullSettings()
	st := State{Occident: 640, Beggars: 45, BeggarLvl: 1, Envoys: 12, EnvoyLvl: 0}
	first, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := Compute(s, Occident, st, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated Compute differs")
	}
}

func TestCompute_ExcludesNegativeLevels(t *testing.T) {
	dist, err := Compute(fullSettings(), Occident, State{Occident: 10}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want := []TierKey{"peasants", "citizens", "patricians", "noblemen"}
	var got []TierKey
	for _, d := range dist {
		got = append(got, d.Key)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
}

func TestCompute_ZeroDivisorCoalescesToZero(t *testing.T) {
	s := twoTierSettings()
	s.Bonuses.BeggarLvl[0] = 0
	dist, err := Compute(s, Occident, State{Occident: 100, Beggars: 10}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := houses(t, dist[1].Dist[1]); got != 50 {
		t.Fatalf("slot 1 = %v, want 50", got)
	}

	// Missing bonus level behaves the same way.
	dist, err = Compute(s, Occident, State{Occident: 100, Beggars: 10, BeggarLvl: 9}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := houses(t, dist[1].Dist[1]); got != 50 {
		t.Fatalf("slot 1 = %v, want 50", got)
	}
}

func TestCompute_InjectedRate(t *testing.T) {
	ceil := func(upstream, rate float64) float64 { return math.Ceil(upstream * rate) }
	dist, err := Compute(twoTierSettings(), Occident, State{Occident: 5}, ceil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := houses(t, dist[1].Dist[1]); got != 3 {
		t.Fatalf("slot 1 = %v, want 3", got)
	}
}

func TestCompute_Errors(t *testing.T) {
	if _, err := Compute(twoTierSettings(), Chain("atlantis"), State{}, PopRate); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got %v", err)
	}

	var cfgErr *ConfigError
	if _, err := Compute(twoTierSettings(), Occident, State{}, nil); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for nil rate, got %v", err)
	}

	cases := map[string]Tier{
		"missing":      {},
		"bad chain":    {Type: "north", Name: "N"},
		"no name":      {Type: Occident},
		"negative cap": {Type: Occident, Name: "N", Capacity: -1},
		"nan rate":     {Type: Orient, Name: "N", Rate: math.NaN()},
	}
	for name, tier := range cases {
		s := twoTierSettings()
		s.Ascension["broken"] = tier
		if _, err := Compute(s, Occident, State{}, PopRate); !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigError, got %v", name, err)
		}
	}
}

func TestChainKeys_TieBreakByKey(t *testing.T) {
	s := Settings{Ascension: map[TierKey]Tier{
		"zeta":  {Type: Orient, Level: 1, Name: "Z"},
		"alpha": {Type: Orient, Level: 1, Name: "A"},
		"base":  {Type: Orient, Level: 0, Name: "B"},
	}}
	got := s.ChainKeys(Orient)
	want := []TierKey{"base", "alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ChainKeys = %v, want %v", got, want)
	}
}

func TestReversedAndHeaders(t *testing.T) {
	dist, err := Compute(twoTierSettings(), Occident, State{Occident: 100}, PopRate)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	rev := Reversed(dist)
	if got := houses(t, rev[0].Dist[0]); got != 50 {
		t.Fatalf("reversed first cell = %v, want 50", got)
	}
	if got := houses(t, dist[0].Dist[0]); got != 100 {
		t.Fatalf("Reversed mutated its input")
	}
	if h := LevelHeaders(3); !reflect.DeepEqual(h, []string{"Level 3", "Level 2", "Level 1"}) {
		t.Fatalf("LevelHeaders = %v", h)
	}
}

func TestStateValidate(t *testing.T) {
	s := fullSettings()
	if err := NewState().Validate(s); err != nil {
		t.Fatalf("zero state should validate: %v", err)
	}

	bad := []State{
		{Occident: -1},
		{Envoys: math.Inf(1)},
		{BeggarLvl: 7},
		{EnvoyLvl: -1},
	}
	for _, st := range bad {
		var inErr *InputError
		if err := st.Validate(s); !errors.As(err, &inErr) {
			t.Fatalf("%+v: expected InputError, got %v", st, err)
		}
	}
}

func TestComputePyramid(t *testing.T) {
	p, err := ComputePyramid(fullSettings(), State{Occident: 100, Orient: 60}, PopRate)
	if err != nil {
		t.Fatalf("ComputePyramid: %v", err)
	}
	if len(p.Occident) != 4 || len(p.Orient) != 2 {
		t.Fatalf("unexpected sizes occident=%d orient=%d", len(p.Occident), len(p.Orient))
	}
	r := p.Reversed()
	if got := houses(t, r.Orient[1].Dist[0]); got != 30 {
		t.Fatalf("envoys at top level = %v, want 30", got)
	}
}
