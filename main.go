package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/juju/gnuflag"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-drum/audio"
	"go-drum/audio/output"
	"go-drum/bank"
	"go-drum/clock"
	"go-drum/config"
	"go-drum/debug"
	"go-drum/midi"
	"go-drum/pattern"
	"go-drum/render"
	"go-drum/sequencer"
	"go-drum/surface"
	"go-drum/theme"
	"go-drum/tui"
)

var (
	configPath  = flag.String("config", "", "config file (default ~/.config/go-drum/config.json)")
	bankKind    = flag.String("bank", "", "sample bank: midi, audio or log")
	portName    = flag.String("port", "", "MIDI output port for the midi bank")
	presetName  = flag.String("preset", "", "built-in pattern: "+strings.Join(pattern.PresetNames(), ", "))
	patternFile = flag.String("pattern", "", "pattern file (.json or .yaml)")
	project     = flag.String("project", "", "project to load and save")
	palette     = flag.String("palette", "", "GIMP palette (.gpl) for the UI and pads")
	tempo       = flag.Float64("tempo", 0, "tempo in BPM")
	logPath     = flag.String("debug", "", "write a debug log to this file, - for stderr")
	exportWAV   = flag.String("export-wav", "", "render the pattern to a WAV file and exit")
	exportMIDI  = flag.String("export-midi", "", "write the pattern as a standard MIDI file and exit")
	loops       = flag.Int("loops", 1, "pattern repeats when exporting")
	listPorts   = flag.Bool("list-ports", false, "list MIDI output ports and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `
Usage: go-drum [OPTION]...
Plays a looping drum pattern through MIDI, an audio device or the debug log.

With -export-wav or -export-midi the pattern is rendered offline and
nothing is played.
`[1:])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse(true)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "go-drum: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *listPorts {
		for _, name := range midi.OutPorts() {
			fmt.Println(name)
		}
		return nil
	}

	switch *logPath {
	case "":
	case "-":
		debug.EnableWriter(os.Stderr)
	default:
		if err := debug.EnableFile(*logPath); err != nil {
			return err
		}
	}
	defer debug.Disable()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, bpm, err := loadPattern(cfg)
	if err != nil {
		return err
	}
	rec, projectName := resume(cfg, pattern.RecordOf(p, bpm), session{
		project:  *project,
		tempo:    *tempo,
		explicit: *patternFile != "" || *presetName != "",
	})

	if *exportWAV != "" || *exportMIDI != "" {
		return export(cfg, rec)
	}
	return play(cfg, rec, projectName)
}

// session holds the command line choices that decide what to open.
type session struct {
	project  string
	tempo    float64
	explicit bool // -pattern or -preset given
}

// resume picks the record to start with. A saved project replaces rec and
// -tempo wins over everything. Without flags the project and tempo of the
// last session are used.
func resume(cfg *config.Config, rec pattern.Record, s session) (pattern.Record, string) {
	name := s.project
	if name == "" && !s.explicit {
		name = cfg.UI.LastProject
	}
	loaded := false
	if name != "" {
		if saved, err := sequencer.LoadProject(name, ""); err == nil {
			rec = saved
			loaded = true
		} else {
			debug.Log("main", "project %s: %v", name, err)
		}
	}
	if !loaded && !s.explicit {
		if last := cfg.UI.LastTempo; last >= cfg.Transport.MinTempo && last <= cfg.Transport.MaxTempo {
			rec.TempoBPM = last
		}
	}
	if rec.TempoBPM == 0 {
		rec.TempoBPM = cfg.Transport.Tempo
	}
	if s.tempo != 0 {
		rec.TempoBPM = s.tempo
	}
	return rec, name
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if *bankKind != "" {
		cfg.Bank = config.BankKind(*bankKind)
	}
	if *portName != "" {
		cfg.MIDI.PortName = *portName
	}
	if *presetName != "" {
		cfg.Preset = *presetName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPattern picks the pattern file, then the preset, then an empty grid of
// the configured length.
func loadPattern(cfg *config.Config) (pattern.Pattern, float64, error) {
	if *patternFile != "" {
		rec, err := pattern.ReadFile(*patternFile)
		if err != nil {
			return pattern.Pattern{}, 0, err
		}
		p, err := rec.ToPattern()
		return p, rec.TempoBPM, err
	}
	if cfg.Preset != "" {
		return pattern.Preset(cfg.Preset)
	}
	store, err := pattern.New(cfg.Transport.Steps, pattern.Kick, pattern.Snare, pattern.HiHat)
	if err != nil {
		return pattern.Pattern{}, 0, err
	}
	return store.Snapshot(), 0, nil
}

func export(cfg *config.Config, rec pattern.Record) error {
	p, err := rec.ToPattern()
	if err != nil {
		return err
	}
	sub := clock.Subdivision(cfg.Transport.Subdivision)

	if *exportWAV != "" {
		f, err := os.Create(*exportWAV)
		if err != nil {
			return err
		}
		err = render.WAV(f, render.Job{
			Pattern:     p,
			Tempo:       rec.TempoBPM,
			Subdivision: sub,
			Loops:       *loops,
			Rate:        cfg.Audio.SampleRate,
			Sources:     cfg.Audio.Samples,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export %s: %w", *exportWAV, err)
		}
		fmt.Println("wrote", *exportWAV)
	}

	if *exportMIDI != "" {
		f, err := os.Create(*exportMIDI)
		if err != nil {
			return err
		}
		err = render.MIDI(f, render.MIDIJob{
			Pattern:     p,
			Tempo:       rec.TempoBPM,
			Subdivision: sub,
			Loops:       *loops,
			Channel:     uint8(cfg.MIDI.Channel - 1),
			Velocity:    uint8(cfg.MIDI.Velocity),
			Kit:         cfg.MIDI.Kit,
			Notes:       cfg.MIDI.Notes,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export %s: %w", *exportMIDI, err)
		}
		fmt.Println("wrote", *exportMIDI)
	}
	return nil
}

// openBank builds the configured bank and preloads every instrument of p.
// The returned closer releases whatever the bank holds open.
func openBank(cfg *config.Config, p pattern.Pattern) (bank.SampleBank, io.Closer, error) {
	ids := p.Instruments()
	switch cfg.Bank {
	case config.BankAudio:
		mix := audio.NewMixer()
		dev, err := output.Open(mix, cfg.Audio.SampleRate, cfg.Audio.Buffer())
		if err != nil {
			return nil, nil, err
		}
		b := audio.NewBank(mix, audio.BankOptions{
			Rate:   cfg.Audio.SampleRate,
			Origin: dev.Start(),
			Alive:  dev.Err,
		})
		if err := bank.PreloadAll(b, cfg.Audio.Samples, ids); err != nil {
			dev.Close()
			return nil, nil, err
		}
		return b, dev, nil

	case config.BankLog:
		b := bank.NewLog()
		for _, id := range ids {
			b.Preload(id, "")
		}
		return b, io.NopCloser(nil), nil

	default:
		b := midi.NewBank(midi.NewOutput(nil), midi.BankOptions{
			Port:     cfg.MIDI.PortName,
			Channel:  uint8(cfg.MIDI.Channel - 1),
			Kit:      cfg.MIDI.Kit,
			Velocity: uint8(cfg.MIDI.Velocity),
			Gate:     cfg.MIDI.Gate(),
		})
		for _, id := range ids {
			if err := b.Preload(id, cfg.MIDI.Notes[id]); err != nil {
				b.Close()
				return nil, nil, err
			}
		}
		return b, b, nil
	}
}

func play(cfg *config.Config, rec pattern.Record, projectName string) error {
	p, err := rec.ToPattern()
	if err != nil {
		return err
	}
	store, err := pattern.FromPattern(p)
	if err != nil {
		return err
	}

	pal := theme.Default()
	if *palette != "" {
		if pal, err = theme.LoadGPL(*palette); err != nil {
			return err
		}
	}
	th := theme.New(pal)

	b, closer, err := openBank(cfg, p)
	if err != nil {
		return err
	}
	defer closer.Close()

	policy, err := sequencer.ParseResumePolicy(cfg.Transport.Resume)
	if err != nil {
		return err
	}
	clk := clock.New(clock.Options{
		Lookahead:   cfg.Transport.Lookahead(),
		MaxFailures: cfg.Transport.MaxFailures,
	})
	tr, err := sequencer.New(clk, store, b, sequencer.Options{
		Tempo:       rec.TempoBPM,
		MinTempo:    cfg.Transport.MinTempo,
		MaxTempo:    cfg.Transport.MaxTempo,
		Subdivision: clock.Subdivision(cfg.Transport.Subdivision),
		Resume:      policy,
	})
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// hot-plugged Launchpads mirror the grid
	deviceMgr := midi.NewDeviceManager()
	go deviceMgr.Run(ctx)
	surf := surface.New(tr, th)
	go surf.Run(ctx)

	m := tui.NewModel(tr, deviceMgr, surf, th)
	if projectName != "" {
		m.Project = projectName
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return rememberSession(tr.Observe().TempoBPM, m.Project)
}

// rememberSession stores the last tempo and project without writing back
// any command line overrides.
func rememberSession(bpm float64, projectName string) error {
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	cfg.UI.LastTempo = bpm
	cfg.UI.LastProject = projectName
	if *configPath != "" {
		return cfg.SaveTo(*configPath)
	}
	return cfg.Save()
}
