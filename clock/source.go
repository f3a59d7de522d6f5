package clock

import (
	"sort"
	"sync"
	"time"
)

// Source is where the clock reads time and waits for it.
type Source interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot wake-up created by a Source.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// System is the wall-clock Source. time.Now carries a monotonic reading, so
// anchored deadlines are immune to wall-clock jumps.
var System Source = systemSource{}

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

func (systemSource) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }

// Virtual is a simulated Source. A timer jumps virtual time straight to its
// deadline and fires at once, so a clock driven by Virtual runs as fast as the
// callbacks allow. Timers past the limit stay pending until SetLimit moves the
// limit beyond them; each time that happens Parked is signalled.
type Virtual struct {
	mu      sync.Mutex
	now     time.Time
	limit   time.Time
	pending []*virtualTimer
	parked  chan struct{}
}

// NewVirtual returns a Virtual source starting at start with no limit.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now:    start,
		parked: make(chan struct{}, 1),
	}
}

// NewVirtualUntil returns a Virtual source that parks timers after limit.
func NewVirtualUntil(start, limit time.Time) *Virtual {
	v := NewVirtual(start)
	v.limit = limit
	return v
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *Virtual) NewTimer(d time.Duration) Timer {
	v.mu.Lock()
	defer v.mu.Unlock()

	if d < 0 {
		d = 0
	}
	t := &virtualTimer{
		v:        v,
		deadline: v.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	if !v.limit.IsZero() && t.deadline.After(v.limit) {
		v.pending = append(v.pending, t)
		select {
		case v.parked <- struct{}{}:
		default:
		}
		return t
	}
	v.now = t.deadline
	t.c <- t.deadline
	return t
}

// Parked is signalled whenever a timer is held back by the limit.
func (v *Virtual) Parked() <-chan struct{} {
	return v.parked
}

// Limit returns the current limit; zero means unlimited.
func (v *Virtual) Limit() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limit
}

// SetLimit moves the limit and fires pending timers that now fall inside it.
// A zero limit removes the limit.
func (v *Virtual) SetLimit(limit time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.limit = limit
	sort.Slice(v.pending, func(i, j int) bool {
		return v.pending[i].deadline.Before(v.pending[j].deadline)
	})
	keep := v.pending[:0]
	for _, t := range v.pending {
		if !limit.IsZero() && t.deadline.After(limit) {
			keep = append(keep, t)
			continue
		}
		if t.deadline.After(v.now) {
			v.now = t.deadline
		}
		t.c <- t.deadline
	}
	v.pending = keep
}

// Advance moves virtual time forward by d without firing anything.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
}

type virtualTimer struct {
	v        *Virtual
	deadline time.Time
	c        chan time.Time
}

func (t *virtualTimer) C() <-chan time.Time { return t.c }

func (t *virtualTimer) Stop() bool {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()
	for i, p := range t.v.pending {
		if p == t {
			t.v.pending = append(t.v.pending[:i], t.v.pending[i+1:]...)
			return true
		}
	}
	return false
}
