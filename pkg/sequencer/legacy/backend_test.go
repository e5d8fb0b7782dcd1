package legacy

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/james-see/dualseq/pkg/logger"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
	"github.com/james-see/dualseq/pkg/transport"
)

type recordingPort struct {
	mu   sync.Mutex
	name string
	msgs [][]byte
}

func (p *recordingPort) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, append([]byte(nil), data...))
	return nil
}

func (p *recordingPort) String() string { return p.name }

func (p *recordingPort) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type namedUnit struct{}

func (namedUnit) Name() string          { return "synth" }
func (namedUnit) Send(msg []byte) error { return nil }

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeTime) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestBackend(t *testing.T) (*Backend, *fakeTime) {
	t.Helper()
	ft := &fakeTime{t: time.Unix(0, 0)}
	b := New(
		WithLogger(logger.Discard()),
		WithClockOptions(transport.WithNow(ft.now), transport.WithInterval(0)),
	)
	t.Cleanup(func() { b.Close() })
	return b, ft
}

func testDocument(t *testing.T, specs ...source.TrackSpec) *source.Document {
	t.Helper()
	data, err := source.Build(120, specs...)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	doc, err := source.Parse("test", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

func threeTracks(t *testing.T) *source.Document {
	return testDocument(t,
		source.TrackSpec{Length: 4, Notes: []source.Note{{At: 0, Duration: 1, Key: 60}}},
		source.TrackSpec{Length: 8, Notes: []source.Note{{At: 4, Duration: 4, Key: 48}}},
		source.TrackSpec{Length: 2},
	)
}

func TestLoadTracks(t *testing.T) {
	b, _ := newTestBackend(t)

	n, err := b.Load(threeTracks(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n != 3 || b.TrackCount() != 3 {
		t.Fatalf("track count = %d/%d, want 3", n, b.TrackCount())
	}

	want := []sequencer.Beats{4, 8, 2}
	for i, tr := range b.Tracks() {
		if tr.Index() != i {
			t.Errorf("Index() = %d, want %d", tr.Index(), i)
		}
		if got := tr.Length(); got != want[i] {
			t.Errorf("track %d Length() = %v, want %v", i, got, want[i])
		}
		if got := tr.LoopInfo(); got != (sequencer.LoopInfo{}) {
			t.Errorf("track %d LoopInfo() = %+v, want zero", i, got)
		}
		if !tr.Destination().IsZero() {
			t.Errorf("track %d has a destination before routing", i)
		}
	}
}

func TestLoadFailureKeepsContent(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := b.Load(&source.Document{}); err == nil {
		t.Fatal("Load() with zero resolution should fail")
	}
	if b.TrackCount() != 3 {
		t.Errorf("TrackCount() after failed load = %d, want 3", b.TrackCount())
	}
}

func TestReloadInvalidatesHandles(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	old := b.Tracks()

	if _, err := b.Load(testDocument(t, source.TrackSpec{Length: 1})); err != nil {
		t.Fatal(err)
	}
	if got := old[1].Length(); got != 0 {
		t.Errorf("stale handle Length() = %v, want 0", got)
	}
	old[1].SetLength(16)
	if got := b.Tracks()[0].Length(); got != 1 {
		t.Errorf("stale write leaked into new content: Length() = %v", got)
	}
}

func TestTrackProperties(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	tr := b.Tracks()[0]

	tr.SetLength(6.5)
	if got := tr.Length(); got != 6.5 {
		t.Errorf("Length() = %v, want 6.5", got)
	}

	tr.SetLoopInfo(sequencer.LoopInfo{Duration: 2, Count: 3})
	if got := tr.LoopInfo(); got != (sequencer.LoopInfo{Duration: 2, Count: 3}) {
		t.Errorf("LoopInfo() = %+v", got)
	}

	tr.SetLoopInfo(sequencer.LoopInfo{Duration: 4, Count: 1 << 32})
	if got := tr.LoopInfo(); got != (sequencer.LoopInfo{Duration: 4, Count: math.MaxInt32}) {
		t.Errorf("LoopInfo() with oversized count = %+v, want saturated count", got)
	}

	port := &recordingPort{name: "out"}
	tr.SetDestination(sequencer.EndpointDestination(port))
	if got := tr.Destination().String(); got != "endpoint:out" {
		t.Errorf("Destination() = %q", got)
	}

	tr.SetDestination(sequencer.UnitDestination(namedUnit{}))
	if got := tr.Destination().String(); got != "endpoint:out" {
		t.Errorf("audio unit should be ignored, Destination() = %q", got)
	}

	tr.SetDestination(sequencer.Destination{})
	if !tr.Destination().IsZero() {
		t.Error("zero destination should clear the endpoint")
	}
}

func TestSetLengthRoundsToTicks(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	tr := b.Tracks()[0]

	tests := []struct {
		set  sequencer.Beats
		want sequencer.Beats
	}{
		{3, 3},
		{0.0004, 0},
		{1.4 / source.DefaultPPQ, 1.0 / source.DefaultPPQ},
		{7.0 / source.DefaultPPQ, 7.0 / source.DefaultPPQ},
	}
	for _, tt := range tests {
		tr.SetLength(tt.set)
		if got := tr.Length(); got != tt.want {
			t.Errorf("SetLength(%v) then Length() = %v, want %v", tt.set, got, tt.want)
		}
	}
}

func TestTransport(t *testing.T) {
	b, ft := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}

	if b.Playing() {
		t.Fatal("new backend should not be playing")
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !b.Playing() {
		t.Fatal("Start() did not start the player")
	}

	ft.advance(time.Second)
	if got := b.Position(); got != 2 {
		t.Errorf("Position() = %v, want 2", got)
	}

	b.Rewind()
	if got := b.Position(); got != 0 || !b.Playing() {
		t.Errorf("after Rewind Position() = %v, Playing() = %v", got, b.Playing())
	}

	b.Stop()
	if b.Playing() {
		t.Error("Stop() did not stop the player")
	}
}

func TestDispatchToEndpoint(t *testing.T) {
	b, ft := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	port := &recordingPort{name: "out"}
	for _, tr := range b.Tracks() {
		tr.SetDestination(sequencer.EndpointDestination(port))
	}

	b.Start()
	ft.advance(time.Second) // beats 0..2: track 0 on and off
	b.Pump()
	if got := port.count(); got != 2 {
		t.Fatalf("sent %d messages in first two beats, want 2", got)
	}

	ft.advance(3 * time.Second) // beats 2..8: track 1 on, off at its end
	b.Pump()
	if got := port.count(); got != 4 {
		t.Errorf("sent %d messages after eight beats, want 4", got)
	}
}

func TestDispatchLoops(t *testing.T) {
	b, ft := newTestBackend(t)
	if _, err := b.Load(testDocument(t,
		source.TrackSpec{Length: 2, Notes: []source.Note{{At: 0, Duration: 1, Key: 60}}},
	)); err != nil {
		t.Fatal(err)
	}
	port := &recordingPort{name: "out"}
	tr := b.Tracks()[0]
	tr.SetDestination(sequencer.EndpointDestination(port))
	tr.SetLoopInfo(sequencer.LoopInfo{Duration: 2, Count: sequencer.LoopForever})

	b.Start()
	ft.advance(3 * time.Second) // six beats, three passes
	b.Pump()
	if got := port.count(); got != 6 {
		t.Errorf("sent %d messages over three loop passes, want 6", got)
	}
}

func TestDump(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	b.Tracks()[0].SetLoopInfo(sequencer.LoopInfo{Duration: 4, Count: 2})

	var buf bytes.Buffer
	if err := b.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ppq=480", "tracks=3", "loop=1920 ticks x 2", "player"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() missing %q:\n%s", want, out)
		}
	}
}

func TestCloseDisposes(t *testing.T) {
	b, _ := newTestBackend(t)
	if _, err := b.Load(threeTracks(t)); err != nil {
		t.Fatal(err)
	}
	tracks := b.Tracks()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if b.TrackCount() != 0 {
		t.Error("closed backend should report no tracks")
	}
	if tracks[0].Length() != 0 {
		t.Error("handles should be invalid after Close")
	}
	if _, err := b.Load(threeTracks(t)); err == nil {
		t.Error("Load() after Close should fail")
	}
}

func TestStatusErr(t *testing.T) {
	if StatusOK.Err() != nil {
		t.Error("StatusOK.Err() should be nil")
	}
	if err := StatusInvalidHandle.Err(); err == nil || !strings.Contains(err.Error(), "invalid handle") {
		t.Errorf("StatusInvalidHandle.Err() = %v", err)
	}
	if err := Status(-1).Err(); err == nil || !strings.Contains(err.Error(), "-1") {
		t.Errorf("Status(-1).Err() = %v", err)
	}
}
