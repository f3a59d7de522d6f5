package pattern

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownPreset = errors.New("unknown preset")

// DefaultPreset is loaded when nothing else is asked for.
const DefaultPreset = "basic"

// Instrument ids used by the presets.
const (
	Kick  = "kick"
	Snare = "snare"
	HiHat = "hiHat"
)

// presets are written as 1/0 rows in the same shape as saved files.
var presets = map[string]Record{
	"basic": {
		NumSteps: 8,
		TempoBPM: 120,
		Pattern: Grid{
			{Kick, steps(1, 0, 0, 0, 1, 0, 0, 0)},
			{Snare, steps(0, 0, 1, 0, 0, 0, 1, 0)},
			{HiHat, steps(1, 0, 1, 0, 1, 0, 1, 0)},
		},
	},
	"empty": {
		NumSteps: 8,
		Pattern: Grid{
			{Kick, steps(0, 0, 0, 0, 0, 0, 0, 0)},
			{Snare, steps(0, 0, 0, 0, 0, 0, 0, 0)},
			{HiHat, steps(0, 0, 0, 0, 0, 0, 0, 0)},
		},
	},
	"four-on-floor": {
		NumSteps: 16,
		TempoBPM: 124,
		Pattern: Grid{
			{Kick, steps(1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0)},
			{Snare, steps(0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0)},
			{HiHat, steps(0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0)},
		},
	},
}

// Preset returns a fresh copy of a named pattern and its suggested tempo
// (zero if it has none).
func Preset(name string) (Pattern, float64, error) {
	rec, ok := presets[name]
	if !ok {
		return Pattern{}, 0, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	p, err := rec.ToPattern()
	if err != nil {
		return Pattern{}, 0, err
	}
	return p, rec.TempoBPM, nil
}

// PresetNames lists the available presets alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func steps(bits ...int) []bool {
	out := make([]bool, len(bits))
	for i, b := range bits {
		out[i] = b != 0
	}
	return out
}
