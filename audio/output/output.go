// Package output plays a mixer on the system audio device.
package output

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"go-drum/audio"
	"go-drum/debug"
)

// Device is an open audio output. Only one may exist per process.
type Device struct {
	ctx    *oto.Context
	player *oto.Player
	start  time.Time
}

// Open starts playing mix at rate. buffer is the device buffer length; zero
// lets the driver choose.
func Open(mix *audio.Mixer, rate int, buffer time.Duration) (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	p := ctx.NewPlayer(mix)
	p.Play()
	d := &Device{ctx: ctx, player: p, start: time.Now()}
	debug.Log("audio", "device open rate=%d buffer=%s", rate, buffer)
	return d, nil
}

// Start is when the device began pulling frames, the origin for an
// audio.Bank.
func (d *Device) Start() time.Time {
	return d.start
}

// Err reports a failure of the device, nil while it is healthy.
func (d *Device) Err() error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	return d.player.Err()
}

// Close stops playback.
func (d *Device) Close() error {
	d.player.Pause()
	return d.player.Close()
}
