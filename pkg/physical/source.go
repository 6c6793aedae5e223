package physical

import (
	"sync/atomic"
	"time"
)

// Source reads wall-clock time. Now has no error return: a source that
// cannot produce a reading must panic rather than invent one.
type Source interface {
	Now() time.Time
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() time.Time

// Now calls f.
func (f SourceFunc) Now() time.Time { return f() }

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

// System returns the local machine's wall clock.
func System() Source { return systemSource{} }

// ManualSource is a Source whose reading only moves when told to. It is safe
// for concurrent use and is what tests and scenario replays run against.
type ManualSource struct {
	ms atomic.Int64
}

// NewManualSource returns a source reading ms milliseconds after the epoch.
func NewManualSource(ms int64) *ManualSource {
	m := &ManualSource{}
	m.ms.Store(ms)
	return m
}

// Now returns the current manual reading.
func (m *ManualSource) Now() time.Time {
	return time.UnixMilli(m.ms.Load()).UTC()
}

// Set moves the reading to ms, forwards or backwards.
func (m *ManualSource) Set(ms int64) { m.ms.Store(ms) }

// Advance moves the reading by d, truncated to whole milliseconds.
func (m *ManualSource) Advance(d time.Duration) { m.ms.Add(d.Milliseconds()) }

// Millis returns the current reading in milliseconds.
func (m *ManualSource) Millis() int64 { return m.ms.Load() }
