package render

import (
	"fmt"
	"io"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-drum/clock"
	"go-drum/midi"
	"go-drum/pattern"
	"go-drum/sequencer"
)

// Resolution is the SMF resolution in ticks per quarter note.
const Resolution = 960

// MIDIJob describes a standard MIDI file export.
type MIDIJob struct {
	Pattern     pattern.Pattern
	Tempo       float64
	Subdivision clock.Subdivision
	Loops       int
	Channel     uint8
	Velocity    uint8

	// Kit and Notes pick each instrument's note, see midi.ResolveNote.
	Kit   string
	Notes map[string]string
}

func (j *MIDIJob) fill() {
	if j.Tempo == 0 {
		j.Tempo = sequencer.DefaultTempo
	}
	if j.Subdivision == 0 {
		j.Subdivision = clock.Sixteenth
	}
	if j.Loops <= 0 {
		j.Loops = 1
	}
	if j.Channel > 15 {
		j.Channel = 9
	}
	if j.Velocity == 0 {
		j.Velocity = 100
	}
	if j.Kit == "" {
		j.Kit = midi.DefaultKit
	}
}

// TicksPerStep is the length of one step at sub.
func TicksPerStep(sub clock.Subdivision) uint32 {
	return uint32(Resolution * 4 / int(sub))
}

// MIDI writes job as a format 1 SMF: a tempo track, then one track per
// instrument. Each hit lasts half a step.
func MIDI(w io.Writer, job MIDIJob) error {
	job.fill()
	if err := job.Pattern.Validate(); err != nil {
		return err
	}
	if !job.Subdivision.Valid() {
		return fmt.Errorf("%w: %d", clock.ErrBadSubdivision, int(job.Subdivision))
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(job.Tempo))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	step := TicksPerStep(job.Subdivision)
	gate := step / 2
	total := uint32(job.Loops*job.Pattern.NumSteps) * step
	for _, row := range job.Pattern.Rows {
		note, err := midi.ResolveNote(job.Kit, row.Instrument, job.Notes[row.Instrument])
		if err != nil {
			return fmt.Errorf("%s: %w", row.Instrument, err)
		}

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(row.Instrument))
		var at uint32 // absolute tick of the last event
		for loop := 0; loop < job.Loops; loop++ {
			for i, on := range row.Steps {
				if !on {
					continue
				}
				start := uint32(loop*job.Pattern.NumSteps+i) * step
				tr.Add(start-at, gomidi.NoteOn(job.Channel, note, job.Velocity))
				tr.Add(gate, gomidi.NoteOff(job.Channel, note))
				at = start + gate
			}
		}
		tr.Close(total - at)
		if err := s.Add(tr); err != nil {
			return fmt.Errorf("add track %s: %w", row.Instrument, err)
		}
	}

	_, err := s.WriteTo(w)
	return err
}
