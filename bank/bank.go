// Package bank defines how the transport asks for sounds to be played.
package bank

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go-drum/debug"
)

var (
	ErrNotLoaded = errors.New("sample not loaded")
	ErrNoOutput  = errors.New("output unavailable")
)

// SampleBank plays pre-loaded sounds at a requested time. Trigger must not
// block on I/O; it schedules and returns.
type SampleBank interface {
	Trigger(id string, at time.Time) error
	Preload(id, source string) error
}

// PlaybackError is a failed trigger. It does not stop playback on its own.
type PlaybackError struct {
	Instrument string
	Err        error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s: %v", e.Instrument, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// LoadError is a failed preload.
type LoadError struct {
	Instrument string
	Source     string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %q: %v", e.Instrument, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Hit is one recorded trigger.
type Hit struct {
	Instrument string
	At         time.Time
}

// Log is a bank that plays nothing and remembers every trigger. It backs the
// "log" output and serves as a test double; Fail makes triggers for one
// instrument error.
type Log struct {
	mu      sync.Mutex
	sources map[string]string
	hits    []Hit
	fail    map[string]error
}

// NewLog returns an empty Log bank.
func NewLog() *Log {
	return &Log{
		sources: make(map[string]string),
		fail:    make(map[string]error),
	}
}

func (l *Log) Preload(id, source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[id] = source
	debug.Log("bank", "preload %s <- %s", id, source)
	return nil
}

// Trigger records the hit. Instruments never preloaded fail with ErrNotLoaded.
func (l *Log) Trigger(id string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.fail[id]; ok && err != nil {
		return &PlaybackError{Instrument: id, Err: err}
	}
	if _, ok := l.sources[id]; !ok {
		return &PlaybackError{Instrument: id, Err: ErrNotLoaded}
	}
	l.hits = append(l.hits, Hit{Instrument: id, At: at})
	debug.Log("bank", "hit %s at %s", id, at.Format("15:04:05.000"))
	return nil
}

// Fail makes every later trigger of id return err; nil clears it.
func (l *Log) Fail(id string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, id)
		return
	}
	l.fail[id] = err
}

// Hits returns a copy of every recorded trigger in order.
func (l *Log) Hits() []Hit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Hit(nil), l.hits...)
}

// Reset forgets recorded hits.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = nil
}

// PreloadAll loads every id to source pair, stopping at the first failure.
func PreloadAll(b SampleBank, sources map[string]string, order []string) error {
	for _, id := range order {
		src, ok := sources[id]
		if !ok {
			continue
		}
		if err := b.Preload(id, src); err != nil {
			return err
		}
	}
	return nil
}
