package legacy

import (
	"math"

	"github.com/james-see/dualseq/pkg/sequencer"
)

// track is a handle to one native track. After a reload its ref is
// disposed and every read returns zero.
type track struct {
	b     *Backend
	ref   TrackRef
	index int
}

func (t *track) Index() int { return t.index }

func (t *track) Length() sequencer.Beats {
	ticks, st := t.b.tb.TrackGetLength(t.ref)
	if st != StatusOK {
		return 0
	}
	return t.b.toBeats(ticks)
}

// SetLength rounds to the nearest whole tick
func (t *track) SetLength(length sequencer.Beats) {
	if st := t.b.tb.TrackSetLength(t.ref, t.b.toTicks(length)); st != StatusOK {
		t.b.log.Warn("set track length failed", "track", t.index, "error", st.Err())
	}
}

func (t *track) LoopInfo() sequencer.LoopInfo {
	info, st := t.b.tb.TrackGetLoopInfo(t.ref)
	if st != StatusOK {
		return sequencer.LoopInfo{}
	}
	return sequencer.LoopInfo{
		Duration: t.b.toBeats(info.Duration),
		Count:    int(info.NumberOfLoops),
	}
}

// SetLoopInfo writes the native loop property. The native count is 32-bit,
// so larger counts saturate instead of wrapping to LoopForever.
func (t *track) SetLoopInfo(info sequencer.LoopInfo) {
	count := info.Count
	switch {
	case count > math.MaxInt32:
		count = math.MaxInt32
	case count < 0:
		count = 0
	}
	native := LoopInfo{
		Duration:      t.b.toTicks(info.Duration),
		NumberOfLoops: int32(count),
	}
	if st := t.b.tb.TrackSetLoopInfo(t.ref, native); st != StatusOK {
		t.b.log.Warn("set loop info failed", "track", t.index, "error", st.Err())
	}
}

func (t *track) Destination() sequencer.Destination {
	port, st := t.b.tb.TrackGetDestEndpoint(t.ref)
	if st != StatusOK || port == nil {
		return sequencer.Destination{}
	}
	return sequencer.EndpointDestination(port)
}

// SetDestination routes the track to a MIDI endpoint. Audio units have no
// native routing here and are ignored.
func (t *track) SetDestination(dest sequencer.Destination) {
	if unit, ok := dest.Unit(); ok {
		t.b.log.Debug("audio unit destinations are not supported, ignoring",
			"track", t.index, "unit", unit.Name())
		return
	}
	port, _ := dest.Endpoint()
	if st := t.b.tb.TrackSetDestEndpoint(t.ref, port); st != StatusOK {
		t.b.log.Warn("set destination failed", "track", t.index, "error", st.Err())
	}
}
