package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Mixer sums scheduled samples into one stereo stream. Frames are counted
// from the first Process call; a voice starts on the frame it was scheduled
// for, or at once if that frame has already been rendered.
type Mixer struct {
	mu     sync.Mutex
	pos    int64
	gain   float32
	voices []*voice
	buf    []float32
}

type voice struct {
	s     *Sample
	start int64
	off   int
}

// NewMixer returns an empty mixer at unity gain.
func NewMixer() *Mixer {
	return &Mixer{gain: 1}
}

// SetGain scales the whole mix.
func (m *Mixer) SetGain(g float32) {
	m.mu.Lock()
	m.gain = g
	m.mu.Unlock()
}

// Position is the number of frames rendered so far.
func (m *Mixer) Position() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Active is the number of voices still playing or waiting to play.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Schedule plays s from frame. It returns the frame the voice will actually
// start on.
func (m *Mixer) Schedule(s *Sample, frame int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frame < m.pos {
		frame = m.pos
	}
	m.voices = append(m.voices, &voice{s: s, start: frame})
	return frame
}

// Process renders len(dst)/2 frames of interleaved stereo into dst, clipped to
// [-1,1].
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}
	frames := int64(len(dst) / Channels)
	end := m.pos + frames

	keep := m.voices[:0]
	for _, v := range m.voices {
		if v.start >= end {
			keep = append(keep, v)
			continue
		}
		i := v.start - m.pos
		if i < 0 {
			i = 0
		}
		for ; i < frames && v.off < v.s.Frames(); i++ {
			dst[i*Channels] += v.s.Data[v.off*Channels]
			dst[i*Channels+1] += v.s.Data[v.off*Channels+1]
			v.off++
		}
		if v.off < v.s.Frames() {
			keep = append(keep, v)
		}
	}
	for i := len(keep); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = keep

	for i, x := range dst {
		x *= m.gain
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		dst[i] = x
	}
	m.pos = end
}

// Read serves the mix as float32 little-endian stereo, for an oto player.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / (Channels * 4)
	if frames == 0 {
		return 0, nil
	}
	need := frames * Channels
	if cap(m.buf) < need {
		m.buf = make([]float32, need)
	}
	buf := m.buf[:need]
	m.Process(buf)
	for i, x := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(x))
	}
	return need * 4, nil
}
