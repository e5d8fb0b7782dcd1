package transport

import "math"

// Window is an interval [From, To) in track-local time. A Closed window
// also contains To; that happens when it ends on the track end or on a loop
// boundary, so messages placed exactly there (typically note-offs) play.
type Window struct {
	From, To float64
	Closed   bool
}

// Loop describes how a track repeats. A zero Length disables looping; a
// zero Count repeats forever, otherwise the region plays Count times.
type Loop struct {
	Length float64
	Count  int
}

// LocalWindows maps a global window onto the track-local windows it covers.
// end is the track length; nothing at or past it is ever covered.
func LocalWindows(from, to, end float64, loop Loop) []Window {
	if to <= from || end <= 0 {
		return nil
	}
	if from < 0 {
		from = 0
	}

	if loop.Length <= 0 {
		if from >= end {
			return nil
		}
		return []Window{{From: from, To: math.Min(to, end), Closed: to >= end}}
	}

	if loop.Count > 0 {
		to = math.Min(to, loop.Length*float64(loop.Count))
	}

	var windows []Window
	cycle := math.Floor(from / loop.Length)
	for start := from; start < to; cycle++ {
		offset := cycle * loop.Length
		segEnd := math.Min(to, offset+loop.Length)
		if segEnd > start {
			local := Window{From: math.Max(0, start-offset), To: math.Min(segEnd-offset, end)}
			local.Closed = local.To == end || segEnd == offset+loop.Length
			if local.From < local.To {
				windows = append(windows, local)
			}
			start = segEnd
		}
	}
	return windows
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t float64) bool {
	return t >= w.From && (t < w.To || w.Closed && t == w.To)
}
