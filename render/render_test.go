package render

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-audio/wav"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-drum/audio"
	"go-drum/pattern"
)

func kickSnare() pattern.Pattern {
	return pattern.Pattern{
		NumSteps: 4,
		Rows: []pattern.Row{
			{Instrument: "kick", Steps: []bool{true, false, false, false}},
			{Instrument: "snare", Steps: []bool{false, false, true, false}},
		},
	}
}

// click is one frame long so each hit shows up as a single frame.
func click(v float32) *audio.Sample {
	return &audio.Sample{Rate: 8000, Data: []float32{v, v}}
}

func nonZero(data []float32) map[int]float32 {
	got := make(map[int]float32)
	for i := 0; i < len(data); i += audio.Channels {
		if data[i] != 0 {
			got[i/audio.Channels] = data[i]
		}
	}
	return got
}

func TestSamplesPlacesHitsOnTheGrid(t *testing.T) {
	c := qt.New(t)
	// 120 bpm sixteenths at 8 kHz: 1000 frames per step
	data, err := Samples(Job{
		Pattern: kickSnare(),
		Tempo:   120,
		Loops:   2,
		Rate:    8000,
		Samples: map[string]*audio.Sample{"kick": click(0.5), "snare": click(0.25)},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(len(data), qt.Equals, (8000+1)*audio.Channels)
	c.Assert(nonZero(data), qt.DeepEquals, map[int]float32{
		0:    0.5,
		2000: 0.25,
		4000: 0.5,
		6000: 0.25,
	})
}

func TestSamplesTempo(t *testing.T) {
	c := qt.New(t)
	data, err := Samples(Job{
		Pattern: pattern.Pattern{NumSteps: 2, Rows: []pattern.Row{{Instrument: "kick", Steps: []bool{true, true}}}},
		Tempo:   60,
		Rate:    8000,
		Samples: map[string]*audio.Sample{"kick": click(0.5)},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(nonZero(data), qt.DeepEquals, map[int]float32{0: 0.5, 2000: 0.5})
}

func TestSamplesMatchesJobRate(t *testing.T) {
	c := qt.New(t)
	// one frame at 4 kHz becomes two at 8 kHz
	slow := func(v float32) *audio.Sample {
		return &audio.Sample{Rate: 4000, Data: []float32{v, v}}
	}
	data, err := Samples(Job{
		Pattern: kickSnare(),
		Tempo:   120,
		Rate:    8000,
		Samples: map[string]*audio.Sample{"kick": slow(0.5), "snare": slow(0.25)},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(len(data), qt.Equals, (4000+2)*audio.Channels)
	c.Assert(nonZero(data), qt.DeepEquals, map[int]float32{
		0:    0.5,
		1:    0.5,
		2000: 0.25,
		2001: 0.25,
	})
}

func TestSamplesNeedsEverySample(t *testing.T) {
	c := qt.New(t)
	_, err := Samples(Job{
		Pattern: kickSnare(),
		Rate:    8000,
		Samples: map[string]*audio.Sample{"kick": click(0.5)},
	})
	c.Assert(err, qt.ErrorIs, ErrNoSample)
	c.Assert(err, qt.ErrorMatches, `no sample for instrument "snare"`)

	_, err = Samples(Job{
		Pattern: kickSnare(),
		Rate:    8000,
		Sources: map[string]string{"kick": "missing.wav", "snare": "missing.wav"},
	})
	c.Assert(err, qt.ErrorMatches, `load kick from "missing.wav": .*`)
}

func TestWAV(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "out.wav")
	f, err := os.Create(path)
	c.Assert(err, qt.IsNil)
	err = WAV(f, Job{
		Pattern: kickSnare(),
		Rate:    8000,
		Samples: map[string]*audio.Sample{"kick": click(0.5), "snare": click(0.25)},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	f, err = os.Open(path)
	c.Assert(err, qt.IsNil)
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(buf.Format.NumChannels, qt.Equals, 2)
	c.Assert(buf.Format.SampleRate, qt.Equals, 8000)
	c.Assert(buf.Data, qt.HasLen, (4000+1)*2)
	c.Assert(buf.Data[0], qt.Equals, 16383)
	c.Assert(buf.Data[2000*2], qt.Equals, 8191)
}

type noteOn struct {
	Tick uint32
	Key  uint8
}

func TestMIDI(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	err := MIDI(&buf, MIDIJob{
		Pattern: kickSnare(),
		Tempo:   120,
		Loops:   2,
		Notes:   map[string]string{"snare": "40"},
	})
	c.Assert(err, qt.IsNil)

	s, err := smf.ReadFrom(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Tracks, qt.HasLen, 3)
	c.Assert(s.TempoChanges(), qt.HasLen, 1)
	c.Assert(s.TempoChanges()[0].BPM, qt.Equals, 120.0)

	var ons []noteOn
	var offs int
	for _, tr := range s.Tracks[1:] {
		var abs uint32
		for _, ev := range tr {
			abs += ev.Delta
			var ch, key, vel uint8
			msg := gomidi.Message(ev.Message)
			switch {
			case msg.GetNoteOn(&ch, &key, &vel):
				c.Assert(ch, qt.Equals, uint8(9))
				c.Assert(vel, qt.Equals, uint8(100))
				ons = append(ons, noteOn{abs, key})
			case msg.GetNoteOff(&ch, &key, &vel):
				offs++
			}
		}
		c.Assert(abs, qt.Equals, uint32(8*240))
	}
	c.Assert(ons, qt.DeepEquals, []noteOn{
		{0, 36}, {960, 36},
		{480, 40}, {1440, 40},
	})
	c.Assert(offs, qt.Equals, 4)
}

func TestMIDIErrors(t *testing.T) {
	c := qt.New(t)
	err := MIDI(&bytes.Buffer{}, MIDIJob{Pattern: kickSnare(), Notes: map[string]string{"kick": "tb303:kick"}})
	c.Assert(err, qt.ErrorMatches, `kick: unknown kit "tb303"`)
	err = MIDI(&bytes.Buffer{}, MIDIJob{Pattern: kickSnare(), Subdivision: 6})
	c.Assert(err, qt.ErrorMatches, `unsupported subdivision: 6`)
	c.Assert(TicksPerStep(16), qt.Equals, uint32(240))
	c.Assert(TicksPerStep(4), qt.Equals, uint32(960))
}
