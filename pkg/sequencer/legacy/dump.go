package legacy

import (
	"fmt"
	"io"
)

// Dump writes the native sequence and player state
func (b *Backend) Dump(w io.Writer) error {
	b.tb.mu.Lock()
	s, ok := b.tb.sequences[b.seq]
	if !ok {
		b.tb.mu.Unlock()
		_, err := fmt.Fprintf(w, "sequence %d: disposed\n", b.seq)
		return err
	}

	lines := []string{
		fmt.Sprintf("sequence %d %q ppq=%d tempo=%.2f tracks=%d", b.seq, s.name, s.ppq, s.tempo, len(s.tracks)),
	}
	for i, ref := range s.tracks {
		t := b.tb.tracks[ref]
		if t == nil {
			lines = append(lines, fmt.Sprintf("  track %d ref=%d: disposed", i, ref))
			continue
		}
		loop := "none"
		if t.hasLoop && t.loop.Duration > 0 {
			loop = fmt.Sprintf("%d ticks x %d", t.loop.Duration, t.loop.NumberOfLoops)
		}
		dest := "<none>"
		if t.dest != nil {
			dest = t.dest.String()
		}
		lines = append(lines, fmt.Sprintf("  track %d ref=%d length=%d loop=%s dest=%s events=%d",
			i, ref, t.length, loop, dest, len(t.events)))
	}
	b.tb.mu.Unlock()

	playing, _ := b.tb.PlayerIsPlaying(b.player)
	at, _ := b.tb.PlayerGetTime(b.player)
	lines = append(lines, fmt.Sprintf("player %d playing=%t time=%.3f", b.player, playing, at))

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
