package legacy

import (
	"fmt"
	"sync"

	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
	"github.com/james-see/dualseq/pkg/transport"
)

// Status is a native result code
type Status int32

const (
	StatusOK              Status = 0
	StatusInvalidHandle   Status = -50
	StatusTrackIndex      Status = -10859
	StatusPropertyNotSet  Status = -10879
	StatusInvalidSequence Status = -10846
)

var statusText = map[Status]string{
	StatusInvalidHandle:   "invalid handle",
	StatusTrackIndex:      "track index out of range",
	StatusPropertyNotSet:  "property not set",
	StatusInvalidSequence: "invalid sequence content",
}

// Err converts a status to an error, nil for StatusOK
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	if text, ok := statusText[s]; ok {
		return fmt.Errorf("native status %d: %s", int32(s), text)
	}
	return fmt.Errorf("native status %d", int32(s))
}

// MaxTracks is the native per-sequence track limit
const MaxTracks = 0xFFFF

// SequenceRef, TrackRef and PlayerRef are opaque native handles
type (
	SequenceRef uint32
	TrackRef    uint32
	PlayerRef   uint32
)

// LoopInfo is the native loop property, in ticks
type LoopInfo struct {
	Duration      int64
	NumberOfLoops int32
}

type nativeTrack struct {
	seq       SequenceRef
	events    []source.Event
	length    int64
	hasLength bool
	loop      LoopInfo
	hasLoop   bool
	dest      sequencer.Port
}

type nativeSequence struct {
	name   string
	ppq    uint16
	tempo  float64
	tracks []TrackRef
}

type nativePlayer struct {
	seq   SequenceRef
	clock *transport.Clock
}

// toolbox is the handle-based native sequencing API. Every call returns a
// Status; handles are only valid until disposed.
type toolbox struct {
	mu        sync.Mutex
	next      uint32
	sequences map[SequenceRef]*nativeSequence
	tracks    map[TrackRef]*nativeTrack
	players   map[PlayerRef]*nativePlayer
}

func newToolbox() *toolbox {
	return &toolbox{
		sequences: make(map[SequenceRef]*nativeSequence),
		tracks:    make(map[TrackRef]*nativeTrack),
		players:   make(map[PlayerRef]*nativePlayer),
	}
}

func (tb *toolbox) nextRef() uint32 {
	tb.next++
	return tb.next
}

// NewSequence allocates an empty sequence
func (tb *toolbox) NewSequence() SequenceRef {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	ref := SequenceRef(tb.nextRef())
	tb.sequences[ref] = &nativeSequence{ppq: source.DefaultPPQ, tempo: source.DefaultTempo}
	return ref
}

// DisposeSequence releases a sequence and its tracks
func (tb *toolbox) DisposeSequence(seq SequenceRef) Status {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return StatusInvalidHandle
	}
	for _, ref := range s.tracks {
		delete(tb.tracks, ref)
	}
	delete(tb.sequences, seq)
	return StatusOK
}

// SequenceFileLoad replaces the sequence content with doc's tracks,
// preserving the file's track layout
func (tb *toolbox) SequenceFileLoad(seq SequenceRef, doc *source.Document) Status {
	if doc == nil || doc.PPQ == 0 {
		return StatusInvalidSequence
	}
	if len(doc.Tracks) > MaxTracks {
		return StatusTrackIndex
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return StatusInvalidHandle
	}

	fresh := make([]TrackRef, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		ref := TrackRef(tb.nextRef())
		tb.tracks[ref] = &nativeTrack{
			seq:       seq,
			events:    t.Events,
			length:    t.EndTick,
			hasLength: true,
		}
		fresh = append(fresh, ref)
	}

	for _, ref := range s.tracks {
		delete(tb.tracks, ref)
	}
	s.tracks = fresh
	s.name = doc.Name
	s.ppq = doc.PPQ
	s.tempo = doc.Tempo
	return StatusOK
}

// SequenceGetTrackCount returns the number of tracks
func (tb *toolbox) SequenceGetTrackCount(seq SequenceRef) (uint32, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return 0, StatusInvalidHandle
	}
	return uint32(len(s.tracks)), StatusOK
}

// SequenceGetIndTrack returns the track at index
func (tb *toolbox) SequenceGetIndTrack(seq SequenceRef, index uint32) (TrackRef, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return 0, StatusInvalidHandle
	}
	if int(index) >= len(s.tracks) {
		return 0, StatusTrackIndex
	}
	return s.tracks[index], StatusOK
}

// SequenceGetResolution returns the ticks per quarter note
func (tb *toolbox) SequenceGetResolution(seq SequenceRef) (uint16, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return 0, StatusInvalidHandle
	}
	return s.ppq, StatusOK
}

// SequenceGetTempo returns the initial tempo in BPM
func (tb *toolbox) SequenceGetTempo(seq SequenceRef) (float64, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return 0, StatusInvalidHandle
	}
	return s.tempo, StatusOK
}

// TrackGetLength reads the track length property in ticks
func (tb *toolbox) TrackGetLength(track TrackRef) (int64, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return 0, StatusInvalidHandle
	}
	if !t.hasLength {
		return 0, StatusPropertyNotSet
	}
	return t.length, StatusOK
}

// TrackSetLength writes the track length property in ticks
func (tb *toolbox) TrackSetLength(track TrackRef, ticks int64) Status {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return StatusInvalidHandle
	}
	t.length = ticks
	t.hasLength = true
	return StatusOK
}

// TrackGetLoopInfo reads the loop property
func (tb *toolbox) TrackGetLoopInfo(track TrackRef) (LoopInfo, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return LoopInfo{}, StatusInvalidHandle
	}
	if !t.hasLoop {
		return LoopInfo{}, StatusPropertyNotSet
	}
	return t.loop, StatusOK
}

// TrackSetLoopInfo writes the loop property
func (tb *toolbox) TrackSetLoopInfo(track TrackRef, info LoopInfo) Status {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return StatusInvalidHandle
	}
	t.loop = info
	t.hasLoop = true
	return StatusOK
}

// TrackSetDestEndpoint routes a track to a MIDI endpoint; nil clears it
func (tb *toolbox) TrackSetDestEndpoint(track TrackRef, port sequencer.Port) Status {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return StatusInvalidHandle
	}
	t.dest = port
	return StatusOK
}

// TrackGetDestEndpoint returns the track's MIDI endpoint, possibly nil
func (tb *toolbox) TrackGetDestEndpoint(track TrackRef) (sequencer.Port, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return nil, StatusInvalidHandle
	}
	return t.dest, StatusOK
}

// TrackGetSequence returns the sequence owning a track
func (tb *toolbox) TrackGetSequence(track TrackRef) (SequenceRef, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.tracks[track]
	if !ok {
		return 0, StatusInvalidHandle
	}
	return t.seq, StatusOK
}

// delivery is one message bound for one endpoint
type delivery struct {
	port sequencer.Port
	msg  []byte
}

// collect gathers the channel messages that fall in the beat window [from, to)
// across the sequence's routed tracks
func (tb *toolbox) collect(seq SequenceRef, from, to float64) []delivery {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	s, ok := tb.sequences[seq]
	if !ok {
		return nil
	}

	ppq := float64(s.ppq)
	var out []delivery
	for _, ref := range s.tracks {
		t := tb.tracks[ref]
		if t == nil || t.dest == nil || !t.hasLength {
			continue
		}

		var loop transport.Loop
		if t.hasLoop {
			loop = transport.Loop{Length: float64(t.loop.Duration), Count: int(t.loop.NumberOfLoops)}
		}

		for _, w := range transport.LocalWindows(from*ppq, to*ppq, float64(t.length), loop) {
			for _, ev := range t.events {
				if ev.IsChannel() && w.Contains(float64(ev.Tick)) {
					out = append(out, delivery{port: t.dest, msg: ev.Message})
				}
			}
		}
	}
	return out
}
