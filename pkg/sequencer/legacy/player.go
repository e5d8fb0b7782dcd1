package legacy

import (
	"log/slog"

	"github.com/james-see/dualseq/pkg/transport"
)

// NewPlayer allocates a stopped player. Messages that reach the player's
// sequence are sent from the clock's dispatch goroutine.
func (tb *toolbox) NewPlayer(log *slog.Logger, opts ...transport.Option) PlayerRef {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	ref := PlayerRef(tb.nextRef())
	p := &nativePlayer{}
	p.clock = transport.NewClock(func(from, to float64) {
		tb.mu.Lock()
		seq := p.seq
		tb.mu.Unlock()
		for _, d := range tb.collect(seq, from, to) {
			if err := d.port.Send(d.msg); err != nil {
				log.Debug("send failed", "port", d.port.String(), "error", err)
			}
		}
	}, opts...)
	tb.players[ref] = p
	return ref
}

// DisposePlayer stops and releases a player
func (tb *toolbox) DisposePlayer(player PlayerRef) Status {
	tb.mu.Lock()
	p, ok := tb.players[player]
	delete(tb.players, player)
	tb.mu.Unlock()
	if !ok {
		return StatusInvalidHandle
	}
	p.clock.Stop()
	return StatusOK
}

// PlayerSetSequence binds a sequence to a player and adopts its tempo
func (tb *toolbox) PlayerSetSequence(player PlayerRef, seq SequenceRef) Status {
	tb.mu.Lock()
	p, ok := tb.players[player]
	s, sok := tb.sequences[seq]
	if !ok || !sok {
		tb.mu.Unlock()
		return StatusInvalidHandle
	}
	p.seq = seq
	tempo := s.tempo
	tb.mu.Unlock()

	p.clock.SetTempo(tempo)
	return StatusOK
}

// clockFor returns a player's clock without holding the toolbox lock
// during the clock call, since the clock's dispatch takes that lock too
func (tb *toolbox) clockFor(player PlayerRef) (*transport.Clock, Status) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	p, ok := tb.players[player]
	if !ok {
		return nil, StatusInvalidHandle
	}
	return p.clock, StatusOK
}

// PlayerStart runs the player from its current time
func (tb *toolbox) PlayerStart(player PlayerRef) Status {
	c, st := tb.clockFor(player)
	if st != StatusOK {
		return st
	}
	c.Start()
	return StatusOK
}

// PlayerStop halts the player
func (tb *toolbox) PlayerStop(player PlayerRef) Status {
	c, st := tb.clockFor(player)
	if st != StatusOK {
		return st
	}
	c.Stop()
	return StatusOK
}

// PlayerSetTime moves the player's play-head to beats
func (tb *toolbox) PlayerSetTime(player PlayerRef, beats float64) Status {
	c, st := tb.clockFor(player)
	if st != StatusOK {
		return st
	}
	if beats != 0 {
		// only a rewind to the origin is supported natively
		return StatusInvalidSequence
	}
	c.Rewind()
	return StatusOK
}

// PlayerIsPlaying reports whether the player is running
func (tb *toolbox) PlayerIsPlaying(player PlayerRef) (bool, Status) {
	c, st := tb.clockFor(player)
	if st != StatusOK {
		return false, st
	}
	return c.Running(), StatusOK
}

// PlayerGetTime returns the play-head in beats
func (tb *toolbox) PlayerGetTime(player PlayerRef) (float64, Status) {
	c, st := tb.clockFor(player)
	if st != StatusOK {
		return 0, st
	}
	return c.Position(), StatusOK
}

// pump advances a player's dispatch by hand; used when the clock has no
// dispatch goroutine
func (tb *toolbox) pump(player PlayerRef) {
	if c, st := tb.clockFor(player); st == StatusOK {
		c.Pump()
	}
}
