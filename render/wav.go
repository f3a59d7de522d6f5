// Package render plays patterns offline, to a WAV file or a standard MIDI
// file.
package render

import (
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"go-drum/audio"
	"go-drum/clock"
	"go-drum/debug"
	"go-drum/pattern"
	"go-drum/sequencer"
)

var ErrNoSample = errors.New("no sample for instrument")

// Job describes an offline audio render.
type Job struct {
	Pattern     pattern.Pattern
	Tempo       float64
	Subdivision clock.Subdivision
	Loops       int
	Rate        int

	// Sources are loaded with audio.Load; Samples are resampled to Rate.
	// Every instrument in Pattern needs one or the other.
	Sources map[string]string
	Samples map[string]*audio.Sample
}

func (j *Job) fill() {
	if j.Tempo == 0 {
		j.Tempo = sequencer.DefaultTempo
	}
	if j.Subdivision == 0 {
		j.Subdivision = clock.Sixteenth
	}
	if j.Loops <= 0 {
		j.Loops = 1
	}
	if j.Rate <= 0 {
		j.Rate = 44100
	}
}

// epoch is virtual time zero for renders.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Samples plays the job through a transport driven by a virtual clock and
// returns the interleaved stereo mix. The mix runs until the last sound
// started has finished.
func Samples(job Job) ([]float32, error) {
	job.fill()
	if err := job.Pattern.Validate(); err != nil {
		return nil, err
	}

	mix := audio.NewMixer()
	b := audio.NewBank(mix, audio.BankOptions{Rate: job.Rate, Origin: epoch})
	var tail int
	for _, id := range job.Pattern.Instruments() {
		if s, ok := job.Samples[id]; ok {
			b.Add(id, s)
		} else if src, ok := job.Sources[id]; ok {
			if err := b.Preload(id, src); err != nil {
				return nil, err
			}
		} else {
			return nil, fmt.Errorf("%w %q", ErrNoSample, id)
		}
		s, _ := b.Sample(id)
		tail = max(tail, s.Frames())
	}

	steps := job.Loops * job.Pattern.NumSteps
	interval := clock.Interval(job.Tempo, job.Subdivision)
	// the tick after the last one parks, which is how we know we're done
	last := epoch.Add(time.Duration(steps-1)*interval + interval/2)
	src := clock.NewVirtualUntil(epoch, last)

	store, err := pattern.FromPattern(job.Pattern)
	if err != nil {
		return nil, err
	}
	clk := clock.New(clock.Options{Source: src, Lookahead: -1})
	tr, err := sequencer.New(clk, store, b, sequencer.Options{
		Tempo:       job.Tempo,
		MinTempo:    job.Tempo,
		MaxTempo:    job.Tempo,
		Subdivision: job.Subdivision,
		Resume:      sequencer.ResumeFromStart,
	})
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	if err := tr.Start(); err != nil {
		return nil, err
	}
wait:
	for {
		select {
		case <-src.Parked():
			break wait
		case <-tr.Updates():
			if err := tr.Observe().Err; err != nil {
				return nil, err
			}
		}
	}
	tr.Stop()
	snap := tr.Observe()
	if snap.Err != nil {
		return nil, snap.Err
	}
	if snap.Ticks != uint64(steps) {
		return nil, fmt.Errorf("render stopped after %d of %d steps", snap.Ticks, steps)
	}

	frames := b.Frame(epoch.Add(time.Duration(steps)*interval)) + int64(tail)
	out := make([]float32, frames*audio.Channels)
	mix.Process(out)
	debug.Log("render", "%d steps, %d frames at %d Hz", steps, frames, job.Rate)
	return out, nil
}

// WAV renders job and writes it as 16-bit stereo.
func WAV(w io.WriteSeeker, job Job) error {
	job.fill()
	data, err := Samples(job)
	if err != nil {
		return err
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: job.Rate},
		Data:           make([]int, len(data)),
		SourceBitDepth: 16,
	}
	for i, x := range data {
		buf.Data[i] = int(x * 32767)
	}
	enc := wav.NewEncoder(w, job.Rate, 16, audio.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
