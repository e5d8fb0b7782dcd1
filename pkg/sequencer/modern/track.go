package modern

import (
	"github.com/james-see/dualseq/pkg/sequencer"
)

// track is the handle over one native Track. Once the track is detached by
// a reload, reads return zero and writes are dropped.
type track struct {
	b     *Backend
	t     *Track
	index int
}

func (h *track) Index() int { return h.index }

func (h *track) Length() sequencer.Beats {
	if h.t.Detached() {
		return 0
	}
	return h.b.toBeats(h.t.LengthInSeconds())
}

// SetLength writes the track length and keeps the loop range spanning it
func (h *track) SetLength(length sequencer.Beats) {
	if h.t.Detached() {
		return
	}
	seconds := h.b.toSeconds(length)
	h.t.SetLengthInSeconds(seconds)
	if err := h.t.SetLoopRange(TimeRange{Length: seconds}); err != nil {
		h.b.log.Warn("set loop range failed", "track", h.index, "error", err)
	}
}

func (h *track) LoopInfo() sequencer.LoopInfo {
	if h.t.Detached() || !h.t.LoopingEnabled() {
		return sequencer.LoopInfo{}
	}
	return sequencer.LoopInfo{
		Duration: h.b.toBeats(h.t.LoopRange().Length),
		Count:    h.t.NumberOfLoops(),
	}
}

func (h *track) SetLoopInfo(info sequencer.LoopInfo) {
	if h.t.Detached() {
		return
	}
	h.t.SetLoopingEnabled(info.Duration > 0)
	if err := h.t.SetLoopRange(TimeRange{Length: h.b.toSeconds(info.Duration)}); err != nil {
		h.b.log.Warn("set loop range failed", "track", h.index, "error", err)
	}
	h.t.SetNumberOfLoops(info.Count)
}

func (h *track) Destination() sequencer.Destination {
	if h.t.Detached() {
		return sequencer.Destination{}
	}
	if p := h.t.DestinationPort(); p != nil {
		return sequencer.EndpointDestination(p)
	}
	if u := h.t.DestinationUnit(); u != nil {
		return sequencer.UnitDestination(u)
	}
	return sequencer.Destination{}
}

func (h *track) SetDestination(dest sequencer.Destination) {
	if h.t.Detached() {
		return
	}
	if u, ok := dest.Unit(); ok {
		h.t.SetDestinationUnit(u)
		return
	}
	p, _ := dest.Endpoint()
	h.t.SetDestinationPort(p)
}
