package pattern

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestDecodeJSONKeepsOrderAndAcceptsBits(t *testing.T) {
	c := qt.New(t)
	src := `{
	  "tempoBpm": 96,
	  "pattern": {
	    "snare": [0, 0, 1, 0],
	    "kick": [true, false, false, false],
	    "hiHat": [1, 1, 1, 1]
	  }
	}`
	rec, err := Decode(strings.NewReader(src), JSON)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.TempoBPM, qt.Equals, 96.0)

	p, err := rec.ToPattern()
	c.Assert(err, qt.IsNil)
	c.Assert(p.NumSteps, qt.Equals, 4)
	c.Assert(p.Instruments(), qt.DeepEquals, []string{"snare", "kick", "hiHat"})
	kick, ok := p.Row("kick")
	c.Assert(ok, qt.IsTrue)
	c.Assert(kick, qt.DeepEquals, []bool{true, false, false, false})
}

func TestDecodeYAMLKeepsOrder(t *testing.T) {
	c := qt.New(t)
	src := `
numSteps: 4
pattern:
  hiHat: [1, 0, 1, 0]
  kick: [yes, no, no, no]
`
	// yaml.v3 reads yes/no as strings, not booleans
	_, err := Decode(strings.NewReader(src), YAML)
	c.Assert(err, qt.ErrorIs, ErrInvalidPattern)

	src = strings.ReplaceAll(src, "[yes, no, no, no]", "[true, false, false, false]")
	rec, err := Decode(strings.NewReader(src), YAML)
	c.Assert(err, qt.IsNil)
	p, err := rec.ToPattern()
	c.Assert(err, qt.IsNil)
	c.Assert(p.Instruments(), qt.DeepEquals, []string{"hiHat", "kick"})
}

func TestDecodeRejectsBadSteps(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name string
		src  string
	}{
		{"not an object", `{"pattern": [1, 0]}`},
		{"value two", `{"pattern": {"kick": [2, 0]}}`},
		{"string step", `{"pattern": {"kick": ["x", 0]}}`},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			_, err := Decode(strings.NewReader(test.src), JSON)
			c.Assert(err, qt.ErrorIs, ErrInvalidPattern)
		})
	}
}

func TestToPatternValidates(t *testing.T) {
	c := qt.New(t)
	rec := Record{NumSteps: 8, Pattern: Grid{{Instrument: Kick, Steps: make([]bool, 4)}}}
	_, err := rec.ToPattern()
	c.Assert(err, qt.ErrorIs, ErrInvalidPattern)

	rec = Record{Pattern: Grid{
		{Instrument: Kick, Steps: make([]bool, 4)},
		{Instrument: Kick, Steps: make([]bool, 4)},
	}}
	_, err = rec.ToPattern()
	c.Assert(err, qt.ErrorIs, ErrDuplicateInstrument)
}

func TestEncodeWritesBits(t *testing.T) {
	c := qt.New(t)
	p, tempo, err := Preset("basic")
	c.Assert(err, qt.IsNil)

	var buf bytes.Buffer
	c.Assert(Encode(&buf, RecordOf(p, tempo), YAML), qt.IsNil)
	c.Assert(buf.String(), qt.Equals, `numSteps: 8
tempoBpm: 120
pattern:
  kick: [1, 0, 0, 0, 1, 0, 0, 0]
  snare: [0, 0, 1, 0, 0, 0, 1, 0]
  hiHat: [1, 0, 1, 0, 1, 0, 1, 0]
`)

	buf.Reset()
	c.Assert(Encode(&buf, RecordOf(p, tempo), JSON), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, `"kick": [`)
	c.Assert(strings.Index(buf.String(), "kick") < strings.Index(buf.String(), "hiHat"), qt.IsTrue)
}

func TestFilesRoundTripByExtension(t *testing.T) {
	c := qt.New(t)
	p, _, err := Preset("four-on-floor")
	c.Assert(err, qt.IsNil)
	dir := c.TempDir()
	for _, name := range []string{"beat.json", "beat.yaml", "sub/beat.yml"} {
		path := filepath.Join(dir, name)
		c.Assert(WriteFile(path, RecordOf(p, 124)), qt.IsNil)
		rec, err := ReadFile(path)
		c.Assert(err, qt.IsNil)
		got, err := rec.ToPattern()
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.DeepEquals, p, qt.Commentf("%s", name))
		c.Assert(rec.TempoBPM, qt.Equals, 124.0)
	}
	c.Assert(FormatFor("x.YML"), qt.Equals, YAML)
	c.Assert(FormatFor("x.txt"), qt.Equals, JSON)
}

func TestPresets(t *testing.T) {
	c := qt.New(t)
	c.Assert(PresetNames(), qt.DeepEquals, []string{"basic", "empty", "four-on-floor"})
	_, _, err := Preset("polka")
	c.Assert(err, qt.ErrorIs, ErrUnknownPreset)

	// presets hand out fresh copies
	a, _, _ := Preset("basic")
	a.Rows[0].Steps[1] = true
	b, _, _ := Preset("basic")
	c.Assert(b.Rows[0].Steps[1], qt.IsFalse)
}
