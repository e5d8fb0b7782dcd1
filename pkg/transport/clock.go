// Package transport drives the play-head shared by the sequencer backends
package transport

import (
	"sync"
	"time"
)

// DefaultInterval is the dispatch period of a running clock
const DefaultInterval = 5 * time.Millisecond

// EmitFunc receives the half-open beat window [from, to) that the play-head
// crossed since the previous call
type EmitFunc func(from, to float64)

// Option configures a Clock
type Option func(*Clock)

// WithNow replaces the wall-clock time source
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithInterval sets the dispatch period. Zero disables the dispatch
// goroutine; Pump must then be called by the owner.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) { c.interval = d }
}

// Clock is a play-head measured in beats
type Clock struct {
	mu       sync.Mutex
	running  bool
	base     float64 // beats at origin
	origin   time.Time
	tempo    float64
	emitted  float64
	emit     EmitFunc
	now      func() time.Time
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewClock creates a stopped clock at beat 0. emit may be nil.
func NewClock(emit EmitFunc, opts ...Option) *Clock {
	c := &Clock{
		tempo:    120,
		emit:     emit,
		now:      time.Now,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTempo changes the rate at which the play-head advances
func (c *Clock) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.base = c.positionLocked()
		c.origin = c.now()
	}
	c.tempo = bpm
}

// Tempo returns the current tempo in BPM
func (c *Clock) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempo
}

// Start runs the clock from its current position
func (c *Clock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.origin = c.now()
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	dispatch := c.emit != nil && c.interval > 0
	c.mu.Unlock()

	if dispatch {
		go c.run(stop, done)
	} else {
		close(done)
	}
}

// Stop freezes the play-head and waits for the dispatch goroutine to exit.
// It must not be called from inside an EmitFunc.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.base = c.positionLocked()
	c.running = false
	stop, done := c.stop, c.done
	c.mu.Unlock()

	close(stop)
	<-done
}

// Rewind moves the play-head to beat 0 without changing the running state
func (c *Clock) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = 0
	c.origin = c.now()
	c.emitted = 0
}

// Running reports whether the clock is advancing
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Position returns the play-head in beats
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() float64 {
	if !c.running {
		return c.base
	}
	elapsed := c.now().Sub(c.origin).Seconds()
	return c.base + elapsed*c.tempo/60.0
}

// Pump hands the window crossed since the last pump to the EmitFunc
func (c *Clock) Pump() {
	c.mu.Lock()
	to := c.positionLocked()
	from := c.emitted
	c.emitted = to
	emit := c.emit
	c.mu.Unlock()

	if emit != nil && to > from {
		emit(from, to)
	}
}

func (c *Clock) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Pump()
		}
	}
}
