// Package audio decodes drum samples and mixes them into a float32 stereo
// stream.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"go-drum/debug"
)

// Channels is the channel count of every decoded sample and of the mix.
const Channels = 2

var (
	ErrUnsupportedFormat = errors.New("unsupported sample format")
	ErrInvalidFile       = errors.New("invalid sample file")
)

// Sample is decoded audio: interleaved stereo at Rate.
type Sample struct {
	Rate int
	Data []float32
}

// Frames is the length of s in frames.
func (s *Sample) Frames() int {
	return len(s.Data) / Channels
}

// Duration is the length of s in time.
func (s *Sample) Duration() time.Duration {
	if s.Rate == 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.Rate)
}

// HTTPClient fetches samples given as URLs.
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

// Load reads a sample from a file path or an http(s) URL and converts it to
// stereo at rate. The format comes from the extension: .wav, .aif, .aiff or
// .mp3.
func Load(source string, rate int) (*Sample, error) {
	var data []byte
	var ext string
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetch(source)
		ext = strings.ToLower(path.Ext(strings.SplitN(source, "?", 2)[0]))
	} else {
		data, err = os.ReadFile(source)
		ext = strings.ToLower(filepath.Ext(source))
	}
	if err != nil {
		return nil, err
	}
	s, err := Decode(bytes.NewReader(data), ext, rate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	debug.Log("audio", "loaded %s: %d frames (%s)", source, s.Frames(), s.Duration())
	return s, nil
}

func fetch(url string) ([]byte, error) {
	resp, err := HTTPClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Decode reads audio in the format named by ext and converts it to stereo at
// rate.
func Decode(r io.ReadSeeker, ext string, rate int) (*Sample, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("bad sample rate %d", rate)
	}
	var (
		data    []float32
		srcRate int
		err     error
	)
	switch ext {
	case ".wav":
		data, srcRate, err = decodeWAV(r)
	case ".aif", ".aiff":
		data, srcRate, err = decodeAIFF(r)
	case ".mp3":
		data, srcRate, err = decodeMP3(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return &Sample{Rate: rate, Data: Resample(data, srcRate, rate)}, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a wav file", ErrInvalidFile)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	return fromIntBuffer(buf, int(d.BitDepth))
}

func decodeAIFF(r io.ReadSeeker) ([]float32, int, error) {
	d := aiff.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not an aiff file", ErrInvalidFile)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	return fromIntBuffer(buf, int(d.BitDepth))
}

// fromIntBuffer scales PCM integers to [-1,1] and makes them stereo.
func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) ([]float32, int, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, 0, fmt.Errorf("%w: no format", ErrInvalidFile)
	}
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		return nil, 0, fmt.Errorf("%w: unknown bit depth", ErrInvalidFile)
	}
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	nch := buf.Format.NumChannels
	frames := len(buf.Data) / nch
	out := make([]float32, frames*Channels)
	for i := 0; i < frames; i++ {
		l := float32(buf.Data[i*nch]) / factor
		r := l
		if nch > 1 {
			r = float32(buf.Data[i*nch+1]) / factor
		}
		out[i*2] = l
		out[i*2+1] = r
	}
	return out, buf.Format.SampleRate, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
func decodeMP3(r io.Reader) ([]float32, int, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, err
	}
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out, d.SampleRate(), nil
}

// Resample converts interleaved stereo from one rate to another by linear
// interpolation.
func Resample(data []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(data) == 0 {
		return data
	}
	in := len(data) / Channels
	ratio := float64(to) / float64(from)
	n := int(math.Round(float64(in) * ratio))
	out := make([]float32, n*Channels)
	for i := 0; i < n; i++ {
		pos := float64(i) / ratio
		lo := int(pos)
		if lo >= in {
			lo = in - 1
		}
		hi := lo + 1
		if hi >= in {
			hi = in - 1
		}
		frac := float32(pos - float64(lo))
		for ch := 0; ch < Channels; ch++ {
			a := data[lo*Channels+ch]
			b := data[hi*Channels+ch]
			out[i*Channels+ch] = a + (b-a)*frac
		}
	}
	return out
}
