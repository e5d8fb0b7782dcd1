package sequencer

import "fmt"

// LoadError reports a source that could not be loaded into the active backend
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TransportStartError reports a backend whose transport refused to start
type TransportStartError struct {
	Backend Kind
	Err     error
}

func (e *TransportStartError) Error() string {
	return fmt.Sprintf("%s transport did not start: %v", e.Backend, e.Err)
}

func (e *TransportStartError) Unwrap() error { return e.Err }
