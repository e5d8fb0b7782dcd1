package audiograph

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// output is the playback stream a Graph controls
type output interface {
	Play()
	Pause()
}

// Graph streams one audio source to the sound card. It satisfies
// modern.Engine: the modern sequencer only starts while the graph runs.
type Graph struct {
	mu      sync.Mutex
	out     output
	suspend func() error
	running bool
}

// Open creates the oto context and a paused player reading from src.
// oto allows a single context per process.
func Open(src io.Reader, sampleRate int) (*Graph, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready

	return &Graph{
		out:     ctx.NewPlayer(src),
		suspend: ctx.Suspend,
	}, nil
}

func newGraph(out output) *Graph {
	return &Graph{out: out}
}

// Start begins streaming
func (g *Graph) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running || g.out == nil {
		return
	}
	g.out.Play()
	g.running = true
}

// Stop pauses streaming
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.out.Pause()
	g.running = false
}

// Running reports whether the graph is streaming
func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Close pauses the player, drops it and suspends the context
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.out == nil {
		return nil
	}
	g.out.Pause()
	g.out = nil
	g.running = false
	if g.suspend != nil {
		if err := g.suspend(); err != nil {
			return fmt.Errorf("cannot suspend oto context: %w", err)
		}
	}
	return nil
}
