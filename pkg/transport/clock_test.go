package transport

import (
	"testing"
	"time"
)

// fakeTime is a manually advanced time source
type fakeTime struct {
	t time.Time
}

func (f *fakeTime) now() time.Time { return f.t }

func (f *fakeTime) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock(emit EmitFunc) (*Clock, *fakeTime) {
	ft := &fakeTime{t: time.Unix(0, 0)}
	return NewClock(emit, WithNow(ft.now), WithInterval(0)), ft
}

func TestClockStartStop(t *testing.T) {
	c, ft := newTestClock(nil)

	if c.Running() {
		t.Fatal("new clock should be stopped")
	}

	ft.advance(time.Second)
	if got := c.Position(); got != 0 {
		t.Errorf("Position() before Start = %v, want 0", got)
	}

	c.Start()
	ft.advance(time.Second) // 120 BPM: 2 beats
	if got := c.Position(); got != 2 {
		t.Errorf("Position() = %v, want 2", got)
	}

	c.Stop()
	ft.advance(time.Second)
	if got := c.Position(); got != 2 {
		t.Errorf("Position() after Stop = %v, want 2", got)
	}

	c.Start()
	ft.advance(500 * time.Millisecond)
	if got := c.Position(); got != 3 {
		t.Errorf("Position() after restart = %v, want 3", got)
	}
}

func TestClockRewindKeepsRunningState(t *testing.T) {
	c, ft := newTestClock(nil)

	c.Start()
	ft.advance(time.Second)
	c.Rewind()
	if !c.Running() {
		t.Error("Rewind() should not stop a running clock")
	}
	if got := c.Position(); got != 0 {
		t.Errorf("Position() after Rewind = %v, want 0", got)
	}
	ft.advance(time.Second)
	if got := c.Position(); got != 2 {
		t.Errorf("Position() = %v, want 2", got)
	}

	c.Stop()
	c.Rewind()
	if c.Running() {
		t.Error("Rewind() should not start a stopped clock")
	}
	if got := c.Position(); got != 0 {
		t.Errorf("Position() after stopped Rewind = %v, want 0", got)
	}
}

func TestClockSetTempo(t *testing.T) {
	c, ft := newTestClock(nil)
	c.Start()
	ft.advance(time.Second)
	c.SetTempo(60)
	ft.advance(time.Second)
	if got := c.Position(); got != 3 {
		t.Errorf("Position() = %v, want 3", got)
	}

	c.SetTempo(-1)
	if got := c.Tempo(); got != 60 {
		t.Errorf("Tempo() = %v, want 60", got)
	}
}

func TestClockPump(t *testing.T) {
	var windows []Window
	c, ft := newTestClock(func(from, to float64) {
		windows = append(windows, Window{From: from, To: to})
	})

	c.Pump()
	if len(windows) != 0 {
		t.Fatalf("Pump() on a stopped clock emitted %v", windows)
	}

	c.Start()
	ft.advance(time.Second)
	c.Pump()
	ft.advance(time.Second)
	c.Pump()
	c.Rewind()
	ft.advance(500 * time.Millisecond)
	c.Pump()

	want := []Window{{0, 2, false}, {2, 4, false}, {0, 1, false}}
	if len(windows) != len(want) {
		t.Fatalf("emitted %v, want %v", windows, want)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window %d = %v, want %v", i, windows[i], want[i])
		}
	}
}

func TestClockDispatchGoroutine(t *testing.T) {
	calls := make(chan struct{}, 64)
	c := NewClock(func(from, to float64) {
		select {
		case calls <- struct{}{}:
		default:
		}
	}, WithInterval(time.Millisecond))

	c.Start()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("running clock never dispatched")
	}
	c.Stop()

	if c.Running() {
		t.Error("clock should be stopped")
	}
	// a second Stop is a no-op
	c.Stop()
}
