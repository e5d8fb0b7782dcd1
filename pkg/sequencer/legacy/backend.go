// Package legacy is the handle-based sequencing backend. Lengths and loop
// durations are kept natively in ticks of the loaded file's resolution.
package legacy

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

// WithClockOptions passes options to the player's transport clock
func WithClockOptions(opts ...transport.Option) Option {
	return func(b *Backend) { b.clockOpts = append(b.clockOpts, opts...) }
}

// Backend hosts one native sequence bound to one native player
type Backend struct {
	tb        *toolbox
	seq       SequenceRef
	player    PlayerRef
	log       *slog.Logger
	clockOpts []transport.Option
	closed    bool
}

var _ sequencer.Backend = (*Backend)(nil)

// New allocates an empty sequence and a player bound to it
func New(opts ...Option) *Backend {
	b := &Backend{tb: newToolbox()}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.GetLogger()
	}
	b.log = b.log.With("backend", string(sequencer.KindLegacy))

	b.seq = b.tb.NewSequence()
	b.player = b.tb.NewPlayer(b.log, b.clockOpts...)
	b.tb.PlayerSetSequence(b.player, b.seq)
	return b
}

// Kind returns sequencer.KindLegacy
func (b *Backend) Kind() sequencer.Kind { return sequencer.KindLegacy }

// Load replaces the sequence content and rebinds the player to it
func (b *Backend) Load(doc *source.Document) (int, error) {
	if b.closed {
		return 0, fmt.Errorf("legacy backend closed")
	}
	if err := b.tb.SequenceFileLoad(b.seq, doc).Err(); err != nil {
		return 0, fmt.Errorf("sequence file load: %w", err)
	}
	if err := b.tb.PlayerSetSequence(b.player, b.seq).Err(); err != nil {
		return 0, fmt.Errorf("player set sequence: %w", err)
	}
	return b.TrackCount(), nil
}

// Tracks returns a handle per native track, in file order
func (b *Backend) Tracks() []sequencer.Track {
	n := b.TrackCount()
	tracks := make([]sequencer.Track, 0, n)
	for i := 0; i < n; i++ {
		ref, st := b.tb.SequenceGetIndTrack(b.seq, uint32(i))
		if st != StatusOK {
			b.log.Warn("track lookup failed", "index", i, "error", st.Err())
			continue
		}
		tracks = append(tracks, &track{b: b, ref: ref, index: i})
	}
	return tracks
}

// TrackCount returns the native track count, 0 on error
func (b *Backend) TrackCount() int {
	n, st := b.tb.SequenceGetTrackCount(b.seq)
	if st != StatusOK {
		return 0
	}
	return int(n)
}

// Start runs the player; the native player always starts
func (b *Backend) Start() error {
	if err := b.tb.PlayerStart(b.player).Err(); err != nil {
		return &sequencer.TransportStartError{Backend: sequencer.KindLegacy, Err: err}
	}
	return nil
}

// Stop halts the player
func (b *Backend) Stop() {
	b.tb.PlayerStop(b.player)
}

// Rewind moves the player to time zero
func (b *Backend) Rewind() {
	b.tb.PlayerSetTime(b.player, 0)
}

// Playing reports whether the player is running
func (b *Backend) Playing() bool {
	playing, _ := b.tb.PlayerIsPlaying(b.player)
	return playing
}

// Position returns the player's time in beats
func (b *Backend) Position() sequencer.Beats {
	t, _ := b.tb.PlayerGetTime(b.player)
	return sequencer.Beats(t)
}

// Pump dispatches the events crossed since the last dispatch. Only needed
// when the clock runs without a dispatch goroutine.
func (b *Backend) Pump() {
	b.tb.pump(b.player)
}

// Close disposes the player and the sequence
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.tb.DisposePlayer(b.player).Err(); err != nil {
		return fmt.Errorf("dispose player: %w", err)
	}
	if err := b.tb.DisposeSequence(b.seq).Err(); err != nil {
		return fmt.Errorf("dispose sequence: %w", err)
	}
	return nil
}

func (b *Backend) ppq() float64 {
	ppq, st := b.tb.SequenceGetResolution(b.seq)
	if st != StatusOK || ppq == 0 {
		return source.DefaultPPQ
	}
	return float64(ppq)
}

func (b *Backend) toBeats(ticks int64) sequencer.Beats {
	return sequencer.Beats(float64(ticks) / b.ppq())
}

func (b *Backend) toTicks(beats sequencer.Beats) int64 {
	return int64(math.Round(float64(beats) * b.ppq()))
}
