package source

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Defaults used when a file carries no explicit value
const (
	DefaultPPQ   = 480
	DefaultTempo = 120.0
)

// Event is one message at an absolute tick position
type Event struct {
	Tick    int64
	Message []byte
}

// IsChannel reports whether the event carries a channel voice message
func (e Event) IsChannel() bool {
	return len(e.Message) > 0 && e.Message[0] >= 0x80 && e.Message[0] < 0xF0
}

// Track is one flattened SMF track
type Track struct {
	Name    string
	Events  []Event
	EndTick int64 // tick of the last event, including end markers
}

// Document is a parsed MIDI source shared by every backend
type Document struct {
	Name   string
	PPQ    uint16
	Tempo  float64 // initial tempo in BPM
	Tracks []Track
	SMF    *smf.SMF
}

// TicksToBeats converts a tick count at the document resolution
func (d *Document) TicksToBeats(ticks int64) float64 {
	return float64(ticks) / float64(d.PPQ)
}

// BeatsToSeconds converts beats at the document's initial tempo
func (d *Document) BeatsToSeconds(beats float64) float64 {
	return beats * 60.0 / d.Tempo
}

// Parse decodes raw SMF bytes into a Document
func Parse(name string, data []byte) (*Document, error) {
	if len(data) < 4 || string(data[:4]) != "MThd" {
		return nil, fmt.Errorf("%w: %s: missing MThd header", ErrMalformed, name)
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeFormat, name)
	}

	doc := &Document{
		Name:   name,
		PPQ:    mt.Resolution(),
		Tracks: make([]Track, 0, len(s.Tracks)),
		SMF:    s,
	}
	if doc.PPQ == 0 {
		doc.PPQ = DefaultPPQ
	}

	for _, track := range s.Tracks {
		var t Track
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := []byte(ev.Message)

			// Tempo meta message (FF 51 03 tt tt tt); the first one wins
			if doc.Tempo == 0 && len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 {
					doc.Tempo = 60000000.0 / float64(microsecondsPerBeat)
				}
			}

			// Track name meta message (FF 03 len text)
			if t.Name == "" && len(msg) >= 3 && msg[0] == 0xFF && msg[1] == 0x03 {
				t.Name = metaText(msg)
			}

			t.Events = append(t.Events, Event{Tick: tick, Message: msg})
		}
		t.EndTick = tick
		doc.Tracks = append(doc.Tracks, t)
	}

	if doc.Tempo == 0 {
		doc.Tempo = DefaultTempo
	}

	return doc, nil
}

// metaText extracts the payload of a short text meta message
func metaText(msg []byte) string {
	n := int(msg[2])
	if n&0x80 != 0 || 3+n > len(msg) {
		return ""
	}
	return string(msg[3 : 3+n])
}

// Note is a note placed on a TrackSpec, in beats
type Note struct {
	At       float64
	Duration float64
	Key      uint8
	Velocity uint8
	Channel  uint8
}

// TrackSpec describes a track for Build
type TrackSpec struct {
	Name   string
	Length float64 // beats; the track is padded to exactly this length
	Notes  []Note
}

// Build writes a format 1 SMF with one track per spec. The tempo meta
// message goes on the first track.
func Build(tempo float64, tracks ...TrackSpec) ([]byte, error) {
	if len(tracks) == 0 {
		return nil, errors.New("at least one track is required")
	}
	if tempo <= 0 {
		tempo = DefaultTempo
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(DefaultPPQ)

	for i, spec := range tracks {
		var track smf.Track

		// Track name meta message, limited to a single-byte length
		if name := spec.Name; name != "" {
			if len(name) > 0x7F {
				name = name[:0x7F]
			}
			track.Add(0, smf.Message(append([]byte{0xFF, 0x03, byte(len(name))}, name...)))
		}

		if i == 0 {
			microsecondsPerBeat := uint32(60000000.0 / tempo)
			track.Add(0, smf.Message([]byte{
				0xFF, 0x51, 0x03,
				byte(microsecondsPerBeat >> 16),
				byte(microsecondsPerBeat >> 8),
				byte(microsecondsPerBeat),
			}))
		}

		type timed struct {
			tick int64
			msg  []byte
		}
		var events []timed
		for _, n := range spec.Notes {
			on := beatsToTicks(n.At)
			off := beatsToTicks(n.At + n.Duration)
			velocity := n.Velocity
			if velocity == 0 {
				velocity = 100
			}
			events = append(events,
				timed{tick: on, msg: midi.NoteOn(n.Channel, n.Key, velocity)},
				timed{tick: off, msg: midi.NoteOff(n.Channel, n.Key)},
			)
		}
		sort.SliceStable(events, func(a, b int) bool { return events[a].tick < events[b].tick })

		var current int64
		for _, ev := range events {
			track.Add(uint32(ev.tick-current), ev.msg)
			current = ev.tick
		}

		// Pad to the exact length with a marker, so the length survives a
		// reader that drops the end-of-track message
		end := beatsToTicks(spec.Length)
		if end > current {
			track.Add(uint32(end-current), smf.Message([]byte{0xFF, 0x06, 0x00}))
		}
		track.Close(0)

		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("failed to add track %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

func beatsToTicks(beats float64) int64 {
	if beats <= 0 {
		return 0
	}
	return int64(beats*DefaultPPQ + 0.5)
}
