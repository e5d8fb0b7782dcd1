package modern

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/james-see/dualseq/pkg/logger"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
	"github.com/james-see/dualseq/pkg/transport"
)

// Option configures a Backend
type Option func(*Backend)

// WithLogger sets the backend logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

// WithClockOptions passes options to the sequencer's transport clock
func WithClockOptions(opts ...transport.Option) Option {
	return func(b *Backend) { b.clockOpts = append(b.clockOpts, opts...) }
}

// Backend adapts a Sequencer to sequencer.Backend
type Backend struct {
	seq       *Sequencer
	log       *slog.Logger
	clockOpts []transport.Option
}

var _ sequencer.Backend = (*Backend)(nil)

// New creates an empty backend bound to engine. A nil engine never blocks
// Start.
func New(engine Engine, opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.GetLogger()
	}
	b.log = b.log.With("backend", string(sequencer.KindModern))
	b.seq = NewSequencer(engine, b.log, b.clockOpts...)
	return b
}

// Sequencer exposes the native object model
func (b *Backend) Sequencer() *Sequencer { return b.seq }

// Kind returns sequencer.KindModern
func (b *Backend) Kind() sequencer.Kind { return sequencer.KindModern }

// Load replaces every track with the document's tracks
func (b *Backend) Load(doc *source.Document) (int, error) {
	if err := b.seq.LoadDocument(doc); err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	return b.TrackCount(), nil
}

// Tracks returns a handle per track, in file order
func (b *Backend) Tracks() []sequencer.Track {
	native := b.seq.Tracks()
	tracks := make([]sequencer.Track, len(native))
	for i, t := range native {
		tracks[i] = &track{b: b, t: t, index: i}
	}
	return tracks
}

// TrackCount returns the number of tracks
func (b *Backend) TrackCount() int {
	return len(b.seq.Tracks())
}

// Start begins playback, failing when the bound engine is not running
func (b *Backend) Start() error {
	if err := b.seq.Start(); err != nil {
		return &sequencer.TransportStartError{Backend: sequencer.KindModern, Err: err}
	}
	return nil
}

// Stop halts playback
func (b *Backend) Stop() { b.seq.Stop() }

// Rewind moves the play-head to zero
func (b *Backend) Rewind() { b.seq.ResetPosition() }

// Playing reports whether playback is running
func (b *Backend) Playing() bool { return b.seq.IsPlaying() }

// Position returns the play-head in beats
func (b *Backend) Position() sequencer.Beats {
	return sequencer.Beats(b.seq.CurrentPositionInBeats())
}

// Pump dispatches the events crossed since the last dispatch. Only needed
// when the clock runs without a dispatch goroutine.
func (b *Backend) Pump() { b.seq.Pump() }

// Close stops playback and detaches every track
func (b *Backend) Close() error {
	b.seq.Stop()
	b.seq.mu.Lock()
	for _, t := range b.seq.tracks {
		t.detached = true
	}
	b.seq.tracks = nil
	b.seq.mu.Unlock()
	return nil
}

func (b *Backend) toSeconds(beats sequencer.Beats) float64 {
	return b.seq.SecondsForBeats(float64(beats))
}

// toBeats rounds away float noise left by the seconds round trip
func (b *Backend) toBeats(seconds float64) sequencer.Beats {
	return sequencer.Beats(math.Round(b.seq.BeatsForSeconds(seconds)*1e9) / 1e9)
}
