// Package modern is the object-based sequencing backend. Tracks are objects
// with properties measured in seconds, and the sequencer can be bound to an
// audio engine that must be running for playback to start.
package modern

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
	"github.com/james-see/dualseq/pkg/transport"
)

var (
	// ErrEngineNotRunning is returned by Start when the bound engine is stopped
	ErrEngineNotRunning = errors.New("audio engine is not running")

	// ErrLoopStart is returned for loop ranges that do not begin at zero
	ErrLoopStart = errors.New("loop ranges must start at zero")
)

// Engine is the audio-processing graph a sequencer renders into
type Engine interface {
	Running() bool
}

// TimeRange is a span of track time in seconds
type TimeRange struct {
	Start  float64 `json:"start"`
	Length float64 `json:"length"`
}

type timedEvent struct {
	at  float64 // seconds
	msg []byte
}

// Track is one sequencer track. Its properties are guarded by the owning
// sequencer; a track detached by a reload keeps its last values but no
// longer plays.
type Track struct {
	owner    *Sequencer
	detached bool

	lengthInSeconds float64
	loopingEnabled  bool
	loopRange       TimeRange
	numberOfLoops   int
	port            sequencer.Port
	unit            sequencer.AudioUnit

	name   string
	events []timedEvent
}

// Name is the track name from the source file
func (t *Track) Name() string { return t.name }

// Detached reports whether a reload replaced this track
func (t *Track) Detached() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.detached
}

func (t *Track) LengthInSeconds() float64 {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.lengthInSeconds
}

func (t *Track) SetLengthInSeconds(seconds float64) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.lengthInSeconds = seconds
}

func (t *Track) LoopingEnabled() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.loopingEnabled
}

func (t *Track) SetLoopingEnabled(enabled bool) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.loopingEnabled = enabled
}

func (t *Track) LoopRange() TimeRange {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.loopRange
}

// SetLoopRange sets the looped region. Only ranges starting at zero are
// supported.
func (t *Track) SetLoopRange(r TimeRange) error {
	if r.Start != 0 {
		return fmt.Errorf("%w: start %.3fs", ErrLoopStart, r.Start)
	}
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.loopRange = r
	return nil
}

func (t *Track) NumberOfLoops() int {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.numberOfLoops
}

func (t *Track) SetNumberOfLoops(n int) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.numberOfLoops = n
}

// DestinationPort is the MIDI endpoint the track plays to, if any
func (t *Track) DestinationPort() sequencer.Port {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.port
}

// SetDestinationPort routes the track to p and clears any audio unit
func (t *Track) SetDestinationPort(p sequencer.Port) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.port = p
	t.unit = nil
}

// DestinationUnit is the audio unit the track plays to, if any
func (t *Track) DestinationUnit() sequencer.AudioUnit {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.unit
}

// SetDestinationUnit routes the track to u and clears any MIDI endpoint
func (t *Track) SetDestinationUnit(u sequencer.AudioUnit) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.unit = u
	t.port = nil
}

// Sequencer plays a set of tracks, optionally into an audio engine
type Sequencer struct {
	mu     sync.Mutex
	engine Engine
	tracks []*Track
	tempo  float64
	clock  *transport.Clock
	log    *slog.Logger
}

// NewSequencer creates an empty sequencer bound to engine, which may be nil
func NewSequencer(engine Engine, log *slog.Logger, opts ...transport.Option) *Sequencer {
	s := &Sequencer{
		engine: engine,
		tempo:  source.DefaultTempo,
		log:    log,
	}
	s.clock = transport.NewClock(s.dispatch, opts...)
	return s
}

// LoadDocument replaces every track with the document's tracks. Event and
// length times are converted to seconds at the document's initial tempo.
func (s *Sequencer) LoadDocument(doc *source.Document) error {
	if doc == nil || doc.PPQ == 0 {
		return errors.New("document has no time resolution")
	}
	if doc.Tempo <= 0 {
		return fmt.Errorf("invalid tempo %.2f", doc.Tempo)
	}

	seconds := func(tick int64) float64 {
		return doc.BeatsToSeconds(doc.TicksToBeats(tick))
	}

	fresh := make([]*Track, 0, len(doc.Tracks))
	for _, dt := range doc.Tracks {
		t := &Track{
			owner:           s,
			name:            dt.Name,
			lengthInSeconds: seconds(dt.EndTick),
		}
		t.loopRange = TimeRange{Length: t.lengthInSeconds}
		for _, ev := range dt.Events {
			if ev.IsChannel() {
				t.events = append(t.events, timedEvent{at: seconds(ev.Tick), msg: ev.Message})
			}
		}
		fresh = append(fresh, t)
	}

	s.mu.Lock()
	for _, old := range s.tracks {
		old.detached = true
	}
	s.tracks = fresh
	s.tempo = doc.Tempo
	s.mu.Unlock()

	s.clock.SetTempo(doc.Tempo)
	return nil
}

// Tracks returns the current tracks in file order
func (s *Sequencer) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Tempo is the tempo used for beat and second conversions
func (s *Sequencer) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// SecondsForBeats converts a beat position to seconds
func (s *Sequencer) SecondsForBeats(beats float64) float64 {
	return beats * 60.0 / s.Tempo()
}

// BeatsForSeconds converts seconds to a beat position
func (s *Sequencer) BeatsForSeconds(seconds float64) float64 {
	return seconds * s.Tempo() / 60.0
}

// Start begins playback. It fails when a bound engine is not running.
func (s *Sequencer) Start() error {
	if s.engine != nil && !s.engine.Running() {
		return ErrEngineNotRunning
	}
	s.clock.Start()
	return nil
}

// Stop halts playback
func (s *Sequencer) Stop() {
	s.clock.Stop()
}

// IsPlaying reports whether playback is running
func (s *Sequencer) IsPlaying() bool {
	return s.clock.Running()
}

// CurrentPositionInBeats returns the play-head
func (s *Sequencer) CurrentPositionInBeats() float64 {
	return s.clock.Position()
}

// ResetPosition moves the play-head to zero
func (s *Sequencer) ResetPosition() {
	s.clock.Rewind()
}

// Pump dispatches by hand when the clock has no dispatch goroutine
func (s *Sequencer) Pump() {
	s.clock.Pump()
}

type delivery struct {
	dest sequencer.Destination
	msg  []byte
}

func (s *Sequencer) dispatch(from, to float64) {
	s.mu.Lock()
	scale := 60.0 / s.tempo
	from, to = from*scale, to*scale

	var out []delivery
	for _, t := range s.tracks {
		var dest sequencer.Destination
		switch {
		case t.port != nil:
			dest = sequencer.EndpointDestination(t.port)
		case t.unit != nil:
			dest = sequencer.UnitDestination(t.unit)
		default:
			continue
		}

		var loop transport.Loop
		if t.loopingEnabled {
			loop = transport.Loop{Length: t.loopRange.Length, Count: t.numberOfLoops}
		}
		for _, w := range transport.LocalWindows(from, to, t.lengthInSeconds, loop) {
			for _, ev := range t.events {
				if w.Contains(ev.at) {
					out = append(out, delivery{dest: dest, msg: ev.msg})
				}
			}
		}
	}
	s.mu.Unlock()

	for _, d := range out {
		if err := d.dest.Send(d.msg); err != nil {
			s.log.Debug("send failed", "destination", d.dest.String(), "error", err)
		}
	}
}
