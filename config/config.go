package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX    ControllerType = "launchpad-x"
	ControllerLaunchpadMini ControllerType = "launchpad-mini"
	ControllerLaunchpadPro  ControllerType = "launchpad-pro"
)

// BankKind picks where triggered sounds go.
type BankKind string

const (
	BankMIDI  BankKind = "midi"
	BankAudio BankKind = "audio"
	BankLog   BankKind = "log"
)

var ErrInvalid = errors.New("invalid config")

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string         `json:"portName"`
	Type        ControllerType `json:"type"`
	AutoConnect bool           `json:"autoConnect"`
}

// TransportConfig holds the clock and transport settings.
type TransportConfig struct {
	Tempo       float64 `json:"tempo"`
	MinTempo    float64 `json:"minTempo"`
	MaxTempo    float64 `json:"maxTempo"`
	Steps       int     `json:"steps"`
	Subdivision int     `json:"subdivision"`
	Resume      string  `json:"resume,omitempty"` // "last" or "start"
	LookaheadMs int     `json:"lookaheadMs"`
	MaxFailures int     `json:"maxFailures"`
}

// MIDIConfig defines the drum MIDI output
type MIDIConfig struct {
	PortName string            `json:"portName,omitempty"`
	Channel  int               `json:"channel"` // 1-16 as printed on gear
	Kit      string            `json:"kit,omitempty"`
	Velocity int               `json:"velocity,omitempty"`
	GateMs   int               `json:"gateMs,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"` // instrument -> note source
}

// AudioConfig defines sample playback
type AudioConfig struct {
	SampleRate int               `json:"sampleRate"`
	BufferMs   int               `json:"bufferMs,omitempty"`
	Samples    map[string]string `json:"samples,omitempty"` // instrument -> path or URL
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo   float64 `json:"lastTempo,omitempty"`
	LastProject string  `json:"lastProject,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Transport   TransportConfig    `json:"transport"`
	Preset      string             `json:"preset,omitempty"`
	Bank        BankKind           `json:"bank"`
	MIDI        MIDIConfig         `json:"midi"`
	Audio       AudioConfig        `json:"audio"`
	Controllers []ControllerConfig `json:"controllers,omitempty"`
	UI          UIConfig           `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Tempo:       120,
			MinTempo:    60,
			MaxTempo:    200,
			Steps:       8,
			Subdivision: 16,
			Resume:      "last",
			LookaheadMs: 50,
			MaxFailures: 3,
		},
		Preset: "basic",
		Bank:   BankMIDI,
		MIDI: MIDIConfig{
			Channel:  10,
			Kit:      "gm",
			Velocity: 100,
			GateMs:   50,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			BufferMs:   20,
		},
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
	}
}

// Lookahead is the configured look-ahead; a negative value means none.
func (t TransportConfig) Lookahead() time.Duration {
	if t.LookaheadMs < 0 {
		return -1
	}
	return time.Duration(t.LookaheadMs) * time.Millisecond
}

// Gate is the note length for MIDI hits.
func (m MIDIConfig) Gate() time.Duration {
	return time.Duration(m.GateMs) * time.Millisecond
}

// Buffer is the audio device buffer length.
func (a AudioConfig) Buffer() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	t := c.Transport
	switch {
	case t.MinTempo <= 0 || t.MinTempo > t.MaxTempo:
		return fmt.Errorf("%w: tempo range %v-%v", ErrInvalid, t.MinTempo, t.MaxTempo)
	case t.Tempo < t.MinTempo || t.Tempo > t.MaxTempo:
		return fmt.Errorf("%w: tempo %v outside %v-%v", ErrInvalid, t.Tempo, t.MinTempo, t.MaxTempo)
	case t.Steps <= 0:
		return fmt.Errorf("%w: steps %d", ErrInvalid, t.Steps)
	}
	switch t.Subdivision {
	case 4, 8, 16, 32:
	default:
		return fmt.Errorf("%w: subdivision %d", ErrInvalid, t.Subdivision)
	}
	switch t.Resume {
	case "", "last", "start":
	default:
		return fmt.Errorf("%w: resume %q", ErrInvalid, t.Resume)
	}
	switch c.Bank {
	case BankMIDI, BankAudio, BankLog:
	default:
		return fmt.Errorf("%w: bank %q", ErrInvalid, c.Bank)
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		return fmt.Errorf("%w: midi channel %d", ErrInvalid, c.MIDI.Channel)
	}
	if c.MIDI.Velocity < 0 || c.MIDI.Velocity > 127 {
		return fmt.Errorf("%w: velocity %d", ErrInvalid, c.MIDI.Velocity)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.Audio.SampleRate)
	}
	return nil
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-drum"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path over the defaults. A missing file gives
// the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}
