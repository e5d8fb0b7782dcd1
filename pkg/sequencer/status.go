package sequencer

// TrackStatus is a read-only view of one track
type TrackStatus struct {
	Index       int      `json:"index"`
	Length      Beats    `json:"length"`
	Loop        LoopInfo `json:"loop"`
	Destination string   `json:"destination"`
}

// Status is a snapshot of the facade for display and the API
type Status struct {
	Backend     Kind          `json:"backend"`
	State       string        `json:"state"`
	Source      string        `json:"source,omitempty"`
	Playing     bool          `json:"playing"`
	Position    Beats         `json:"position"`
	Length      Beats         `json:"length"`
	LoopEnabled bool          `json:"loopEnabled"`
	TrackCount  int           `json:"trackCount"`
	Tracks      []TrackStatus `json:"tracks"`
}

// Status collects the current facade state
func (s *Sequencer) Status() Status {
	st := Status{
		Backend:     s.Kind(),
		State:       s.state.String(),
		Source:      s.source,
		Playing:     s.IsPlaying(),
		Position:    s.Position(),
		Length:      s.Length(),
		LoopEnabled: s.loopEnabled,
		TrackCount:  s.TrackCount(),
		Tracks:      make([]TrackStatus, 0, len(s.tracks)),
	}
	for _, t := range s.tracks {
		st.Tracks = append(st.Tracks, TrackStatus{
			Index:       t.Index(),
			Length:      t.Length(),
			Loop:        t.LoopInfo(),
			Destination: t.Destination().String(),
		})
	}
	return st
}
