// Package sequencer presents one playback API over interchangeable
// sequencing backends.
//
// A Sequencer is bound to a single Backend at construction. It caches the
// backend's track handles after every successful Load and fans loop, length
// and output operations out to each of them. The Sequencer is not safe for
// concurrent use; callers sharing one across goroutines must serialize
// access themselves.
package sequencer

import (
	"fmt"
	"io"

	"github.com/james-see/dualseq/pkg/source"
)

// Beats is the canonical unit for lengths and loop durations (quarter notes)
type Beats float64

// LoopForever is the loop count meaning "repeat indefinitely"
const LoopForever = 0

// LoopInfo is a track's loop duration and repeat count. A zero Duration
// disables looping. A Count of LoopForever repeats indefinitely, any other
// count plays the loop region that many times.
type LoopInfo struct {
	Duration Beats `json:"duration"`
	Count    int   `json:"count"`
}

// Kind identifies a backend variant
type Kind string

const (
	KindLegacy Kind = "legacy"
	KindModern Kind = "modern"
)

// ParseKind maps a configuration string to a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLegacy, KindModern:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend %q (want %s or %s)", s, KindLegacy, KindModern)
	}
}

// Track is a backend-neutral handle to one native track. Handles are valid
// until the owning backend loads another source.
type Track interface {
	Index() int
	Length() Beats
	// SetLength writes the track length. Backends store it in their native
	// unit, so Length may read back the nearest representable value (legacy
	// rounds to whole ticks of the file resolution).
	SetLength(length Beats)
	LoopInfo() LoopInfo
	SetLoopInfo(info LoopInfo)
	Destination() Destination
	SetDestination(dest Destination)
}

// Backend is one sequencing engine hosting a sequence and its transport
type Backend interface {
	Kind() Kind

	// Load replaces the native sequence content with doc. On error the
	// previous content is left untouched.
	Load(doc *source.Document) (int, error)

	// Tracks returns a snapshot of the current track handles
	Tracks() []Track
	TrackCount() int

	Start() error
	Stop()
	Rewind()
	Playing() bool

	Close() error
}

// Dumper is implemented by backends with a native diagnostic dump
type Dumper interface {
	Dump(w io.Writer) error
}

// Positioner is implemented by backends that report their play-head
type Positioner interface {
	Position() Beats
}
