package sequencer

import "errors"

// ErrNoDestination is returned when sending through an empty Destination
var ErrNoDestination = errors.New("no output destination")

// Port is a MIDI endpoint. gomidi's drivers.Out satisfies it.
type Port interface {
	Send(data []byte) error
	String() string
}

// AudioUnit is an audio-processing node that consumes MIDI messages
type AudioUnit interface {
	Name() string
	Send(msg []byte) error
}

// Destination routes a track's output to either a MIDI endpoint or an
// audio unit, never both. The zero value routes nowhere.
type Destination struct {
	port Port
	unit AudioUnit
}

// EndpointDestination routes to a MIDI endpoint
func EndpointDestination(p Port) Destination {
	return Destination{port: p}
}

// UnitDestination routes to an audio-processing unit
func UnitDestination(u AudioUnit) Destination {
	return Destination{unit: u}
}

// Endpoint returns the MIDI endpoint, if that is the target
func (d Destination) Endpoint() (Port, bool) {
	return d.port, d.port != nil
}

// Unit returns the audio unit, if that is the target
func (d Destination) Unit() (AudioUnit, bool) {
	return d.unit, d.unit != nil
}

// IsZero reports whether the destination routes nowhere
func (d Destination) IsZero() bool {
	return d.port == nil && d.unit == nil
}

// Send delivers one MIDI message
func (d Destination) Send(msg []byte) error {
	switch {
	case d.port != nil:
		return d.port.Send(msg)
	case d.unit != nil:
		return d.unit.Send(msg)
	default:
		return ErrNoDestination
	}
}

func (d Destination) String() string {
	switch {
	case d.port != nil:
		return "endpoint:" + d.port.String()
	case d.unit != nil:
		return "unit:" + d.unit.Name()
	default:
		return "<none>"
	}
}
