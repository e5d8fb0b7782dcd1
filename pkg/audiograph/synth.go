// Package audiograph renders sequencer output to the sound card. A
// SynthUnit turns MIDI messages into samples with a SoundFont synthesizer
// and a Graph streams those samples through an oto context.
package audiograph

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// DefaultSampleRate is used when no rate is configured
const DefaultSampleRate = 44100

var (
	// ErrSoundFontNotFound is returned when the SoundFont file does not exist
	ErrSoundFontNotFound = errors.New("SoundFont not found")

	// ErrUnsupportedMessage is returned for messages a synthesizer cannot play
	ErrUnsupportedMessage = errors.New("unsupported MIDI message")
)

// synthesizer is the part of meltysynth.Synthesizer a SynthUnit drives
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1 int32, data2 int32)
	NoteOffAll(immediate bool)
	Render(left []float32, right []float32)
}

// SynthUnit is an audio unit that plays MIDI messages on a SoundFont
// synthesizer and renders 16-bit stereo PCM through Read
type SynthUnit struct {
	name  string
	mu    sync.Mutex
	synth synthesizer
}

// LoadSoundFont reads and parses an SF2 file
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}

	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return sf, nil
}

// NewSynthUnit creates a synthesizer unit for sf at sampleRate
func NewSynthUnit(name string, sf *meltysynth.SoundFont, sampleRate int) (*SynthUnit, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	return &SynthUnit{name: name, synth: synth}, nil
}

// Name identifies the unit in routing output
func (u *SynthUnit) Name() string { return u.name }

// Send plays one channel voice message
func (u *SynthUnit) Send(msg []byte) error {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return fmt.Errorf("%w: % X", ErrUnsupportedMessage, msg)
	}

	channel := int32(msg[0] & 0x0F)
	command := int32(msg[0] & 0xF0)
	var data1, data2 int32
	if len(msg) > 1 {
		data1 = int32(msg[1])
	}
	if len(msg) > 2 {
		data2 = int32(msg[2])
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.synth.ProcessMidiMessage(channel, command, data1, data2)
	return nil
}

// Reset silences every voice
func (u *SynthUnit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.synth.NoteOffAll(true)
}

// Read renders interleaved 16-bit little-endian stereo samples
func (u *SynthUnit) Read(p []byte) (int, error) {
	// 16-bit stereo = 4 bytes per frame
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	left := make([]float32, frames)
	right := make([]float32, frames)

	u.mu.Lock()
	u.synth.Render(left, right)
	u.mu.Unlock()

	for i := 0; i < frames; i++ {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return frames * 4, nil
}

var _ io.Reader = (*SynthUnit)(nil)

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
