package main

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"go-drum/config"
	"go-drum/pattern"
	"go-drum/sequencer"
)

func saveRecord(c *qt.C, projectName string, bpm float64) {
	p, _, err := pattern.Preset("basic")
	c.Assert(err, qt.IsNil)
	dir, err := sequencer.ProjectDir(projectName)
	c.Assert(err, qt.IsNil)
	c.Assert(os.MkdirAll(dir, 0o755), qt.IsNil)
	c.Assert(pattern.WriteFile(filepath.Join(dir, "2024-01-01_00-00-00.json"), pattern.RecordOf(p, bpm)), qt.IsNil)
}

func TestResumeLastSession(t *testing.T) {
	c := qt.New(t)
	c.Setenv("HOME", c.TempDir())
	saveRecord(c, "jam", 97)

	cfg := config.DefaultConfig()
	cfg.UI.LastProject = "jam"
	cfg.UI.LastTempo = 150

	// the saved project brings its own tempo
	rec, name := resume(cfg, pattern.Record{TempoBPM: 120}, session{})
	c.Assert(name, qt.Equals, "jam")
	c.Assert(rec.TempoBPM, qt.Equals, 97.0)

	// -tempo still wins
	rec, _ = resume(cfg, pattern.Record{TempoBPM: 120}, session{tempo: 133})
	c.Assert(rec.TempoBPM, qt.Equals, 133.0)

	// a project with no saves falls back to the last tempo
	cfg.UI.LastProject = "empty"
	rec, name = resume(cfg, pattern.Record{TempoBPM: 120}, session{})
	c.Assert(name, qt.Equals, "empty")
	c.Assert(rec.TempoBPM, qt.Equals, 150.0)
}

func TestResumeFlagsOverrideLastSession(t *testing.T) {
	c := qt.New(t)
	c.Setenv("HOME", c.TempDir())
	saveRecord(c, "jam", 97)
	saveRecord(c, "other", 88)

	cfg := config.DefaultConfig()
	cfg.UI.LastProject = "jam"
	cfg.UI.LastTempo = 150

	rec, name := resume(cfg, pattern.Record{TempoBPM: 120}, session{project: "other"})
	c.Assert(name, qt.Equals, "other")
	c.Assert(rec.TempoBPM, qt.Equals, 88.0)

	// an explicit pattern is not replaced by the last project or tempo
	rec, name = resume(cfg, pattern.Record{TempoBPM: 110}, session{explicit: true})
	c.Assert(name, qt.Equals, "")
	c.Assert(rec.TempoBPM, qt.Equals, 110.0)
}

func TestResumeIgnoresOutOfRangeTempo(t *testing.T) {
	c := qt.New(t)
	c.Setenv("HOME", c.TempDir())

	cfg := config.DefaultConfig()
	cfg.UI.LastTempo = 900
	rec, name := resume(cfg, pattern.Record{}, session{})
	c.Assert(name, qt.Equals, "")
	c.Assert(rec.TempoBPM, qt.Equals, cfg.Transport.Tempo)
}
