// Package pattern holds the step grid: one fixed-length boolean sequence per
// instrument, safe for concurrent editing while a transport reads it.
package pattern

import (
	"errors"
	"fmt"
	"sync"

	"go-drum/debug"
)

var (
	ErrOutOfRange          = errors.New("step out of range")
	ErrUnknownInstrument   = errors.New("unknown instrument")
	ErrDuplicateInstrument = errors.New("duplicate instrument")
	ErrInvalidPattern      = errors.New("invalid pattern")
)

// Row is one instrument's steps.
type Row struct {
	Instrument string
	Steps      []bool
}

// Pattern is a detached copy of the grid, rows in insertion order.
type Pattern struct {
	NumSteps int
	Rows     []Row
}

// Instruments returns the instrument ids in row order.
func (p Pattern) Instruments() []string {
	ids := make([]string, len(p.Rows))
	for i, r := range p.Rows {
		ids[i] = r.Instrument
	}
	return ids
}

// Row returns the steps for id.
func (p Pattern) Row(id string) ([]bool, bool) {
	for _, r := range p.Rows {
		if r.Instrument == id {
			return r.Steps, true
		}
	}
	return nil, false
}

// Validate checks that every row has NumSteps entries and ids are unique.
func (p Pattern) Validate() error {
	if p.NumSteps <= 0 {
		return fmt.Errorf("%w: %d steps", ErrInvalidPattern, p.NumSteps)
	}
	seen := make(map[string]bool, len(p.Rows))
	for _, r := range p.Rows {
		if r.Instrument == "" {
			return fmt.Errorf("%w: empty instrument id", ErrInvalidPattern)
		}
		if seen[r.Instrument] {
			return fmt.Errorf("%w: %q", ErrDuplicateInstrument, r.Instrument)
		}
		seen[r.Instrument] = true
		if len(r.Steps) != p.NumSteps {
			return fmt.Errorf("%w: %q has %d steps, want %d", ErrInvalidPattern, r.Instrument, len(r.Steps), p.NumSteps)
		}
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Pattern) Clone() Pattern {
	out := Pattern{NumSteps: p.NumSteps, Rows: make([]Row, len(p.Rows))}
	for i, r := range p.Rows {
		out.Rows[i] = Row{Instrument: r.Instrument, Steps: append([]bool(nil), r.Steps...)}
	}
	return out
}

// Store is the live grid. The step count is fixed for the lifetime of a
// pattern and changes only when the whole pattern is replaced.
type Store struct {
	mu       sync.RWMutex
	numSteps int
	order    []string
	steps    map[string][]bool
}

// New returns an all-false store with the given instruments.
func New(numSteps int, instruments ...string) (*Store, error) {
	if numSteps <= 0 {
		return nil, fmt.Errorf("%w: %d steps", ErrInvalidPattern, numSteps)
	}
	s := &Store{
		numSteps: numSteps,
		steps:    make(map[string][]bool, len(instruments)),
	}
	for _, id := range instruments {
		if err := s.AddInstrument(id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FromPattern returns a store holding a copy of p.
func FromPattern(p Pattern) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.load(p)
	return s, nil
}

// NumSteps returns the length of every row.
func (s *Store) NumSteps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numSteps
}

// Instruments returns instrument ids in insertion order.
func (s *Store) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// AddInstrument appends an all-false row.
func (s *Store) AddInstrument(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty instrument id", ErrInvalidPattern)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateInstrument, id)
	}
	s.order = append(s.order, id)
	s.steps[id] = make([]bool, s.numSteps)
	return nil
}

// ToggleStep flips one step and returns its new value. On error nothing
// changes.
func (s *Store) ToggleStep(id string, step int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id, step)
	if err != nil {
		return false, err
	}
	row[step] = !row[step]
	debug.Log("pattern", "toggle %s[%d] -> %v", id, step, row[step])
	return row[step], nil
}

// SetStep sets one step.
func (s *Store) SetStep(id string, step int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id, step)
	if err != nil {
		return err
	}
	row[step] = on
	return nil
}

// StepsFor returns a copy of id's row.
func (s *Store) StepsFor(id string) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.steps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, id)
	}
	return append([]bool(nil), row...), nil
}

// IsActive reports whether id plays at step.
func (s *Store) IsActive(id string, step int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, err := s.rowLocked(id, step)
	if err != nil {
		return false, err
	}
	return row[step], nil
}

// ActiveAt returns, in row order, every instrument that plays at step. The
// whole column is read under one lock.
func (s *Store) ActiveAt(step int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if step < 0 || step >= s.numSteps {
		return nil, fmt.Errorf("%w: step %d of %d", ErrOutOfRange, step, s.numSteps)
	}
	var ids []string
	for _, id := range s.order {
		if s.steps[id][step] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Snapshot returns a detached copy of the grid.
func (s *Store) Snapshot() Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := Pattern{NumSteps: s.numSteps, Rows: make([]Row, len(s.order))}
	for i, id := range s.order {
		p.Rows[i] = Row{Instrument: id, Steps: append([]bool(nil), s.steps[id]...)}
	}
	return p
}

// Replace swaps in a copy of p, including its step count.
func (s *Store) Replace(p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(p)
	debug.Log("pattern", "replaced: %d instruments x %d steps", len(p.Rows), p.NumSteps)
	return nil
}

// Clear sets every step to false.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.steps {
		clear(row)
	}
}

func (s *Store) load(p Pattern) {
	s.numSteps = p.NumSteps
	s.order = make([]string, len(p.Rows))
	s.steps = make(map[string][]bool, len(p.Rows))
	for i, r := range p.Rows {
		s.order[i] = r.Instrument
		s.steps[r.Instrument] = append([]bool(nil), r.Steps...)
	}
}

func (s *Store) rowLocked(id string, step int) ([]bool, error) {
	row, ok := s.steps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, id)
	}
	if step < 0 || step >= s.numSteps {
		return nil, fmt.Errorf("%w: step %d of %d", ErrOutOfRange, step, s.numSteps)
	}
	return row, nil
}
