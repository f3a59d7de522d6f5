package pattern

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is the on-disk form of a pattern. Rows keep file order; steps are
// written as 1/0 and read from either numbers or booleans.
//
//	numSteps: 8
//	tempoBpm: 120
//	pattern:
//	  kick:  [1, 0, 0, 0, 1, 0, 0, 0]
//	  snare: [0, 0, 1, 0, 0, 0, 1, 0]
type Record struct {
	NumSteps int     `json:"numSteps,omitempty" yaml:"numSteps,omitempty"`
	TempoBPM float64 `json:"tempoBpm,omitempty" yaml:"tempoBpm,omitempty"`
	Pattern  Grid    `json:"pattern" yaml:"pattern"`
}

// Grid is an ordered instrument to steps mapping.
type Grid []Row

// RecordOf captures p and a tempo.
func RecordOf(p Pattern, tempo float64) Record {
	return Record{NumSteps: p.NumSteps, TempoBPM: tempo, Pattern: Grid(p.Clone().Rows)}
}

// ToPattern converts r into a validated Pattern. A missing step count is taken
// from the first row.
func (r Record) ToPattern() (Pattern, error) {
	n := r.NumSteps
	if n == 0 && len(r.Pattern) > 0 {
		n = len(r.Pattern[0].Steps)
	}
	p := Pattern{NumSteps: n, Rows: []Row(r.Pattern)}
	p = p.Clone()
	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	return p, nil
}

func (g Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, row := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(row.Instrument)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		steps, err := json.Marshal(bits(row.Steps))
		if err != nil {
			return nil, err
		}
		buf.Write(steps)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: pattern must be an object", ErrInvalidPattern)
	}
	var rows Grid
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		var raw []any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, id, err)
		}
		steps, err := parseSteps(id, raw)
		if err != nil {
			return err
		}
		rows = append(rows, Row{Instrument: id, Steps: steps})
	}
	*g = rows
	return nil
}

func (g Grid) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, row := range g {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, b := range bits(row.Steps) {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(b)})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: row.Instrument},
			seq,
		)
	}
	return node, nil
}

func (g *Grid) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: pattern must be a mapping", ErrInvalidPattern, node.Line)
	}
	var rows Grid
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var raw []any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, id, err)
		}
		steps, err := parseSteps(id, raw)
		if err != nil {
			return err
		}
		rows = append(rows, Row{Instrument: id, Steps: steps})
	}
	*g = rows
	return nil
}

func parseSteps(id string, raw []any) ([]bool, error) {
	steps := make([]bool, len(raw))
	for i, v := range raw {
		switch v := v.(type) {
		case bool:
			steps[i] = v
		case float64:
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("%w: %q step %d: %v is not 0 or 1", ErrInvalidPattern, id, i, v)
			}
			steps[i] = v == 1
		case int:
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("%w: %q step %d: %v is not 0 or 1", ErrInvalidPattern, id, i, v)
			}
			steps[i] = v == 1
		default:
			return nil, fmt.Errorf("%w: %q step %d: unexpected %T", ErrInvalidPattern, id, i, v)
		}
	}
	return steps, nil
}

func bits(steps []bool) []int {
	out := make([]int, len(steps))
	for i, on := range steps {
		if on {
			out[i] = 1
		}
	}
	return out
}

// Format is a record encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatFor picks the encoding from a file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// Decode reads a record.
func Decode(r io.Reader, f Format) (Record, error) {
	var rec Record
	var err error
	switch f {
	case YAML:
		err = yaml.NewDecoder(r).Decode(&rec)
	default:
		err = json.NewDecoder(r).Decode(&rec)
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Encode writes a record.
func Encode(w io.Writer, rec Record, f Format) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	default:
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
}

// ReadFile loads a record, choosing the format by extension.
func ReadFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	rec, err := Decode(f, FormatFor(path))
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// WriteFile saves a record, choosing the format by extension.
func WriteFile(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, rec, FormatFor(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
