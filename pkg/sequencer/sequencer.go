package sequencer

import (
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/james-see/dualseq/pkg/logger"
	"github.com/james-see/dualseq/pkg/source"
)

// State is the facade's load state
type State int

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithShadow loads every source into a second backend as well, so callers
// can observe it. The shadow never drives playback.
func WithShadow(b Backend) Option {
	return func(s *Sequencer) { s.shadow = b }
}

// WithLogger sets the logger used for non-fatal conditions
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) { s.log = l }
}

// Sequencer is the public playback facade over one active Backend
type Sequencer struct {
	backend Backend
	shadow  Backend
	loader  source.Loader
	log     *slog.Logger

	tracks      []Track
	loopEnabled bool
	state       State
	source      string
}

// New creates an unloaded Sequencer around the active backend
func New(backend Backend, loader source.Loader, opts ...Option) *Sequencer {
	s := &Sequencer{
		backend: backend,
		loader:  loader,
		state:   StateUnloaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	s.log = s.log.With("backend", string(backend.Kind()))
	return s
}

// Load reads name through the loader and loads it into the active backend,
// then into the shadow backend if one is attached. A failure leaves the
// previous tracks and state in place.
func (s *Sequencer) Load(name string) error {
	if s.loader == nil {
		return s.loadFailed(name, errors.New("no source loader configured"))
	}

	data, err := s.loader.Load(name)
	if err != nil {
		return s.loadFailed(name, err)
	}

	doc, err := source.Parse(name, data)
	if err != nil {
		return s.loadFailed(name, err)
	}

	n, err := s.backend.Load(doc)
	if err != nil {
		return s.loadFailed(name, err)
	}

	if s.shadow != nil {
		if _, err := s.shadow.Load(doc); err != nil {
			s.log.Warn("shadow backend failed to load source",
				"source", name, "shadow", string(s.shadow.Kind()), "error", err)
		}
	}

	// Swap the whole cache; stale handles from the previous load are dropped
	s.tracks = s.backend.Tracks()
	s.loopEnabled = false
	s.state = StateLoaded
	s.source = name

	s.log.Info("loaded source", "source", name, "tracks", n, "length", float64(s.Length()))
	return nil
}

func (s *Sequencer) loadFailed(name string, err error) error {
	s.log.Error("failed to load source", "source", name, "error", err)
	return &LoadError{Source: name, Err: err}
}

// Play starts the active backend's transport. A start failure is logged and
// playback simply does not begin.
func (s *Sequencer) Play() {
	if err := s.backend.Start(); err != nil {
		s.log.Warn("playback did not start", "error", err)
	}
}

// Stop halts the transport
func (s *Sequencer) Stop() {
	s.backend.Stop()
}

// Rewind moves the play-head to zero without changing transport state
func (s *Sequencer) Rewind() {
	s.backend.Rewind()
}

// IsPlaying reports whether the active transport is running
func (s *Sequencer) IsPlaying() bool {
	return s.backend.Playing()
}

// Position returns the play-head, or 0 if the backend cannot report it
func (s *Sequencer) Position() Beats {
	if p, ok := s.backend.(Positioner); ok {
		return p.Position()
	}
	return 0
}

// LoopToggle flips between LoopOn and LoopOff
func (s *Sequencer) LoopToggle() {
	if s.loopEnabled {
		s.LoopOff()
	} else {
		s.LoopOn()
	}
}

// LoopOn loops every track over the whole sequence length, indefinitely
func (s *Sequencer) LoopOn() {
	s.SetLoopInfo(s.Length(), LoopForever)
	s.loopEnabled = true
}

// LoopOff clears the loop on every track
func (s *Sequencer) LoopOff() {
	s.SetLoopInfo(0, 0)
	s.loopEnabled = false
}

// LoopEnabled reflects the last LoopOn/LoopOff call
func (s *Sequencer) LoopEnabled() bool {
	return s.loopEnabled
}

// SetLoopInfo applies a loop duration and count to every track. Counts
// beyond math.MaxInt32 are clamped to it.
func (s *Sequencer) SetLoopInfo(duration Beats, count int) {
	if duration < 0 {
		duration = 0
	}
	if count < 0 {
		count = 0
	}
	if count > math.MaxInt32 {
		count = math.MaxInt32
	}
	info := LoopInfo{Duration: duration, Count: count}
	for _, t := range s.tracks {
		t.SetLoopInfo(info)
	}
}

// Length is the longest track's length, or 0 with no tracks
func (s *Sequencer) Length() Beats {
	var length Beats
	for _, t := range s.tracks {
		if l := t.Length(); l > length {
			length = l
		}
	}
	return length
}

// SetLength sets every track's length
func (s *Sequencer) SetLength(length Beats) {
	if length < 0 {
		length = 0
	}
	for _, t := range s.tracks {
		t.SetLength(length)
	}
}

// SetGlobalOutput routes every track to dest. Destinations the backend
// cannot use are ignored by the track.
func (s *Sequencer) SetGlobalOutput(dest Destination) {
	for _, t := range s.tracks {
		t.SetDestination(dest)
	}
	s.log.Debug("global output set", "destination", dest.String(), "tracks", len(s.tracks))
}

// TrackCount is the active backend's track count
func (s *Sequencer) TrackCount() int {
	return s.backend.TrackCount()
}

// Tracks returns a copy of the cached track handles
func (s *Sequencer) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Kind returns the active backend kind
func (s *Sequencer) Kind() Kind {
	return s.backend.Kind()
}

// Shadow returns the shadow backend, if any
func (s *Sequencer) Shadow() Backend {
	return s.shadow
}

// State returns the load state
func (s *Sequencer) State() State {
	return s.state
}

// Source returns the name of the last successfully loaded source
func (s *Sequencer) Source() string {
	return s.source
}

// DebugDump writes the backend's native diagnostic dump. Backends without
// one write nothing.
func (s *Sequencer) DebugDump(w io.Writer) error {
	if d, ok := s.backend.(Dumper); ok {
		return d.Dump(w)
	}
	return nil
}

// Close stops playback and releases both backends
func (s *Sequencer) Close() error {
	s.backend.Stop()
	s.tracks = nil
	var errs []error
	if err := s.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.shadow != nil {
		if err := s.shadow.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
