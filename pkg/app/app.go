// Package app assembles a sequencer and its outputs from configuration
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/dualseq/pkg/audiograph"
	"github.com/james-see/dualseq/pkg/config"
	"github.com/james-see/dualseq/pkg/logger"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/sequencer/legacy"
	"github.com/james-see/dualseq/pkg/sequencer/modern"
	"github.com/james-see/dualseq/pkg/source"
)

// PortResolver opens a MIDI output port by name
type PortResolver func(name string) (sequencer.Port, error)

// OpenPort finds an output port through the registered gomidi driver and
// opens it
func OpenPort(name string) (sequencer.Port, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("MIDI output %q: %w", name, err)
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("failed to open MIDI output %q: %w", name, err)
	}
	return out, nil
}

// Option configures an App
type Option func(*App)

// WithPortResolver replaces OpenPort
func WithPortResolver(r PortResolver) Option {
	return func(a *App) { a.resolve = r }
}

// WithLoader replaces the directory loader built from the config
func WithLoader(l source.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithBackends replaces the backend constructors, mainly for tests
func WithBackends(active, shadow sequencer.Backend) Option {
	return func(a *App) {
		a.active = active
		a.shadow = shadow
	}
}

// App owns a Sequencer together with the resources feeding it
type App struct {
	Config    *config.Config
	Sequencer *sequencer.Sequencer

	graph   *audiograph.Graph
	synth   *audiograph.SynthUnit
	output  sequencer.Destination
	resolve PortResolver
	loader  source.Loader
	active  sequencer.Backend
	shadow  sequencer.Backend
	log     *slog.Logger
}

// New builds the configured backends and output routing. The audio graph is
// only created for the modern backend with a SoundFont configured.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		resolve: OpenPort,
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loader == nil {
		a.loader = source.NewDirLoader(cfg.MIDIDir)
	}

	if cfg.Kind() == sequencer.KindModern && cfg.SoundFont != "" {
		if err := a.openGraph(); err != nil {
			return nil, err
		}
	}

	if a.active == nil {
		a.active, a.shadow = a.buildBackends()
	}

	var seqOpts []sequencer.Option
	if a.shadow != nil {
		seqOpts = append(seqOpts, sequencer.WithShadow(a.shadow))
	}
	a.Sequencer = sequencer.New(a.active, a.loader, seqOpts...)

	switch {
	case cfg.OutputPort != "":
		port, err := a.resolve(cfg.OutputPort)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.output = sequencer.EndpointDestination(port)
	case a.synth != nil:
		a.output = sequencer.UnitDestination(a.synth)
	}

	return a, nil
}

func (a *App) openGraph() error {
	sf, err := audiograph.LoadSoundFont(a.Config.SoundFont)
	if err != nil {
		return err
	}
	synth, err := audiograph.NewSynthUnit("meltysynth", sf, a.Config.SampleRate)
	if err != nil {
		return err
	}
	graph, err := audiograph.Open(synth, a.Config.SampleRate)
	if err != nil {
		return err
	}
	graph.Start()
	a.synth, a.graph = synth, graph
	a.log.Info("audio graph running", "soundfont", a.Config.SoundFont, "sampleRate", a.Config.SampleRate)
	return nil
}

func (a *App) buildBackends() (active, shadow sequencer.Backend) {
	// A nil *Graph must not become a non-nil Engine
	var engine modern.Engine
	if a.graph != nil {
		engine = a.graph
	}
	newLegacy := func() sequencer.Backend { return legacy.New() }
	newModern := func() sequencer.Backend { return modern.New(engine) }

	if a.Config.Kind() == sequencer.KindModern {
		active = newModern()
		if a.Config.Shadow {
			shadow = newLegacy()
		}
		return active, shadow
	}
	active = newLegacy()
	if a.Config.Shadow {
		shadow = newModern()
	}
	return active, shadow
}

// Load loads name and routes every new track to the current output
func (a *App) Load(name string) error {
	if err := a.Sequencer.Load(name); err != nil {
		return err
	}
	if !a.output.IsZero() {
		a.Sequencer.SetGlobalOutput(a.output)
	}
	return nil
}

// Output returns the destination applied after each load
func (a *App) Output() sequencer.Destination { return a.output }

// SetOutput routes the loaded tracks to dest and keeps it for later loads.
// A previously opened MIDI port that dest replaces is closed.
func (a *App) SetOutput(dest sequencer.Destination) {
	prev := a.output
	a.output = dest
	a.Sequencer.SetGlobalOutput(dest)
	a.log.Info("output routed", "destination", dest.String())

	if old, ok := prev.Endpoint(); ok {
		if next, ok := dest.Endpoint(); !ok || next != old {
			if err := closePort(old); err != nil {
				a.log.Warn("failed to close previous output", "port", old.String(), "error", err)
			}
		}
	}
}

// closePort closes p when the driver exposes Close
func closePort(p sequencer.Port) error {
	if c, ok := p.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// SetOutputPort resolves and routes to a named MIDI port
func (a *App) SetOutputPort(name string) error {
	port, err := a.resolve(name)
	if err != nil {
		return err
	}
	a.SetOutput(sequencer.EndpointDestination(port))
	return nil
}

// Synth returns the SoundFont unit, nil without an audio graph
func (a *App) Synth() *audiograph.SynthUnit { return a.synth }

// Close stops playback and releases the sequencer and audio graph
func (a *App) Close() error {
	var errs []error
	if a.Sequencer != nil {
		if err := a.Sequencer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.graph != nil {
		if err := a.graph.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if port, ok := a.output.Endpoint(); ok {
		if err := closePort(port); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
