package pattern

import (
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func newBasic(c *qt.C) *Store {
	p, _, err := Preset("basic")
	c.Assert(err, qt.IsNil)
	s, err := FromPattern(p)
	c.Assert(err, qt.IsNil)
	return s
}

func TestNewIsAllFalse(t *testing.T) {
	c := qt.New(t)
	s, err := New(8, Kick, Snare)
	c.Assert(err, qt.IsNil)
	c.Assert(s.NumSteps(), qt.Equals, 8)
	c.Assert(s.Instruments(), qt.DeepEquals, []string{Kick, Snare})
	for step := 0; step < 8; step++ {
		ids, err := s.ActiveAt(step)
		c.Assert(err, qt.IsNil)
		c.Assert(ids, qt.HasLen, 0)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	c := qt.New(t)
	_, err := New(0, Kick)
	c.Assert(err, qt.ErrorIs, ErrInvalidPattern)
	_, err = New(8, Kick, Kick)
	c.Assert(err, qt.ErrorIs, ErrDuplicateInstrument)
}

func TestToggleTwiceRestores(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	before := s.Snapshot()
	for _, id := range s.Instruments() {
		for step := 0; step < s.NumSteps(); step++ {
			first, err := s.ToggleStep(id, step)
			c.Assert(err, qt.IsNil)
			second, err := s.ToggleStep(id, step)
			c.Assert(err, qt.IsNil)
			c.Assert(second, qt.Equals, !first)
		}
	}
	c.Assert(s.Snapshot(), qt.DeepEquals, before)
}

func TestToggleErrorsLeaveStateUnchanged(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	before := s.Snapshot()

	_, err := s.ToggleStep(Kick, 8)
	c.Assert(err, qt.ErrorIs, ErrOutOfRange)
	_, err = s.ToggleStep(Kick, -1)
	c.Assert(err, qt.ErrorIs, ErrOutOfRange)
	_, err = s.ToggleStep("cowbell", 0)
	c.Assert(err, qt.ErrorIs, ErrUnknownInstrument)
	c.Assert(s.SetStep("cowbell", 0, true), qt.ErrorIs, ErrUnknownInstrument)

	c.Assert(s.Snapshot(), qt.DeepEquals, before)
}

func TestStepsForIsACopy(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	steps, err := s.StepsFor(Kick)
	c.Assert(err, qt.IsNil)
	c.Assert(steps, qt.DeepEquals, []bool{true, false, false, false, true, false, false, false})

	steps[1] = true
	on, err := s.IsActive(Kick, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(on, qt.IsFalse)

	_, err = s.StepsFor("cowbell")
	c.Assert(err, qt.ErrorIs, ErrUnknownInstrument)
}

func TestIsActiveSeesLatestEdit(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	on, err := s.IsActive(Snare, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(on, qt.IsFalse)
	_, err = s.ToggleStep(Snare, 3)
	c.Assert(err, qt.IsNil)
	on, err = s.IsActive(Snare, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(on, qt.IsTrue)

	_, err = s.IsActive(Snare, 99)
	c.Assert(err, qt.ErrorIs, ErrOutOfRange)
}

func TestActiveAtKeepsRowOrder(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	tests := []struct {
		step int
		want []string
	}{
		{0, []string{Kick, HiHat}},
		{1, nil},
		{2, []string{Snare, HiHat}},
		{4, []string{Kick, HiHat}},
		{6, []string{Snare, HiHat}},
		{7, nil},
	}
	for _, test := range tests {
		c.Run(fmt.Sprint("step", test.step), func(c *qt.C) {
			ids, err := s.ActiveAt(test.step)
			c.Assert(err, qt.IsNil)
			c.Assert(ids, qt.DeepEquals, test.want)
		})
	}
	_, err := s.ActiveAt(8)
	c.Assert(err, qt.ErrorIs, ErrOutOfRange)
}

func TestSnapshotIsDetached(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	snap := s.Snapshot()
	snap.Rows[0].Steps[1] = true
	snap.Rows = snap.Rows[:1]
	c.Assert(s.Instruments(), qt.HasLen, 3)
	on, err := s.IsActive(Kick, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(on, qt.IsFalse)
}

func TestReplaceAndClear(t *testing.T) {
	c := qt.New(t)
	s := newBasic(c)
	p, _, err := Preset("four-on-floor")
	c.Assert(err, qt.IsNil)
	c.Assert(s.Replace(p), qt.IsNil)
	c.Assert(s.NumSteps(), qt.Equals, 16)
	c.Assert(s.Snapshot(), qt.DeepEquals, p)

	bad := Pattern{NumSteps: 4, Rows: []Row{{Instrument: Kick, Steps: []bool{true}}}}
	c.Assert(s.Replace(bad), qt.ErrorIs, ErrInvalidPattern)
	c.Assert(s.NumSteps(), qt.Equals, 16)

	s.Clear()
	for step := 0; step < 16; step++ {
		ids, err := s.ActiveAt(step)
		c.Assert(err, qt.IsNil)
		c.Assert(ids, qt.HasLen, 0)
	}
	c.Assert(s.Instruments(), qt.HasLen, 3)
}

func TestConcurrentToggleAndRead(t *testing.T) {
	c := qt.New(t)
	s, err := New(8, Kick, Snare)
	c.Assert(err, qt.IsNil)

	// kick and snare at step 0 are always toggled together under one lock
	// via Replace, so readers must see both or neither.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		on := false
		for i := 0; i < 2000; i++ {
			on = !on
			p := s.Snapshot()
			p.Rows[0].Steps[0] = on
			p.Rows[1].Steps[0] = on
			if err := s.Replace(p); err != nil {
				panic(err)
			}
		}
		close(stop)
	}()
	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		ids, err := s.ActiveAt(0)
		c.Assert(err, qt.IsNil)
		c.Assert(len(ids) == 0 || len(ids) == 2, qt.IsTrue, qt.Commentf("saw %v", ids))
	}
}
