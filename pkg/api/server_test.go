package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/james-see/dualseq/pkg/app"
	"github.com/james-see/dualseq/pkg/config"
	"github.com/james-see/dualseq/pkg/sequencer"
	"github.com/james-see/dualseq/pkg/source"
)

type testPort string

func (p testPort) Send([]byte) error { return nil }
func (p testPort) String() string    { return string(p) }

func songBytes(t *testing.T) []byte {
	t.Helper()
	data, err := source.Build(120,
		source.TrackSpec{Length: 4, Notes: []source.Note{{At: 0, Duration: 1, Key: 60}}},
		source.TrackSpec{Length: 8},
		source.TrackSpec{Length: 2},
	)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestRouter(t *testing.T, backend string) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.mid"), songBytes(t), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.mid"), []byte("MThd garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Backend = backend
	cfg.MIDIDir = dir

	a, err := app.New(cfg, app.WithPortResolver(func(name string) (sequencer.Port, error) {
		if name == "out" {
			return testPort(name), nil
		}
		return nil, errors.New("no such port")
	}))
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return NewServer(a).Router(), dir
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) sequencer.Status {
	t.Helper()
	var st sequencer.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v (%s)", err, w.Body.String())
	}
	return st
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := do(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
			t.Errorf("GET %s = %d %s", path, w.Code, w.Body.String())
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	w := do(t, r, http.MethodOptions, "/api/v1/status", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestLoadAndStatus(t *testing.T) {
	for _, backend := range []string{"legacy", "modern"} {
		t.Run(backend, func(t *testing.T) {
			r, _ := newTestRouter(t, backend)

			st := decodeStatus(t, do(t, r, http.MethodGet, "/api/v1/status", ""))
			if st.State != "unloaded" || st.TrackCount != 0 {
				t.Errorf("initial status = %+v", st)
			}

			w := do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)
			if w.Code != http.StatusOK {
				t.Fatalf("load = %d %s", w.Code, w.Body.String())
			}
			st = decodeStatus(t, w)
			if st.State != "loaded" || st.TrackCount != 3 || st.Length != 8 || string(st.Backend) != backend {
				t.Errorf("status after load = %+v", st)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing name", `{}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
		{"unknown source", `{"name":"absent"}`, http.StatusNotFound},
		{"malformed source", `{"name":"broken"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/load", tt.body)
			if w.Code != tt.want {
				t.Errorf("load = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestLoopEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, "modern")
	do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)

	st := decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/loop/on", ""))
	if !st.LoopEnabled {
		t.Error("loop/on did not enable looping")
	}
	for _, tr := range st.Tracks {
		if tr.Loop != (sequencer.LoopInfo{Duration: 8}) {
			t.Errorf("track %d loop = %+v", tr.Index, tr.Loop)
		}
	}

	st = decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/loop/toggle", ""))
	if st.LoopEnabled {
		t.Error("loop/toggle did not disable looping")
	}

	st = decodeStatus(t, do(t, r, http.MethodPut, "/api/v1/loop", `{"duration":2,"count":3}`))
	if st.Tracks[0].Loop != (sequencer.LoopInfo{Duration: 2, Count: 3}) {
		t.Errorf("PUT loop = %+v", st.Tracks[0].Loop)
	}

	st = decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/loop/off", ""))
	if st.LoopEnabled || st.Tracks[0].Loop != (sequencer.LoopInfo{}) {
		t.Errorf("loop/off = %+v", st)
	}
}

func TestSetLength(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)

	st := decodeStatus(t, do(t, r, http.MethodPut, "/api/v1/length", `{"length":12}`))
	if st.Length != 12 {
		t.Errorf("length = %v, want 12", st.Length)
	}

	w := do(t, r, http.MethodPut, "/api/v1/length", `{"length":"long"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad length = %d, want 400", w.Code)
	}
}

func TestTransportEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)

	if st := decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/transport/play", "")); !st.Playing {
		t.Error("play did not start the transport")
	}
	if st := decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/transport/rewind", "")); !st.Playing {
		t.Error("rewind should keep playing")
	}
	if st := decodeStatus(t, do(t, r, http.MethodPost, "/api/v1/transport/stop", "")); st.Playing {
		t.Error("stop did not stop the transport")
	}
}

func TestOutputEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)

	st := decodeStatus(t, do(t, r, http.MethodPut, "/api/v1/output", `{"port":"out"}`))
	for _, tr := range st.Tracks {
		if tr.Destination != "endpoint:out" {
			t.Errorf("track %d destination = %q", tr.Index, tr.Destination)
		}
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown port", `{"port":"nowhere"}`, http.StatusNotFound},
		{"no synth", `{"unit":true}`, http.StatusNotFound},
		{"both", `{"port":"out","unit":true}`, http.StatusBadRequest},
		{"clear", `{}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPut, "/api/v1/output", tt.body)
			if w.Code != tt.want {
				t.Errorf("output = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	st = decodeStatus(t, do(t, r, http.MethodGet, "/api/v1/status", ""))
	if st.Tracks[0].Destination != "<none>" {
		t.Errorf("destination after clear = %q", st.Tracks[0].Destination)
	}
}

func TestDumpEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	do(t, r, http.MethodPost, "/api/v1/load", `{"name":"song"}`)

	w := do(t, r, http.MethodGet, "/api/v1/dump", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tracks=3") {
		t.Errorf("dump = %d %q", w.Code, w.Body.String())
	}
}

func TestUpload(t *testing.T) {
	r, dir := newTestRouter(t, "legacy")

	upload := func(filename string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := upload("fresh.mid", songBytes(t))
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.Source != "fresh.mid" || st.TrackCount != 3 {
		t.Errorf("status after upload = %+v", st)
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.mid")); err != nil {
		t.Errorf("uploaded file not stored: %v", err)
	}

	w = upload("bare", songBytes(t))
	if w.Code != http.StatusOK {
		t.Fatalf("extensionless upload = %d %s", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.Source != "bare.mid" {
		t.Errorf("extensionless upload source = %q, want bare.mid", st.Source)
	}
	if _, err := os.Stat(filepath.Join(dir, "bare.mid")); err != nil {
		t.Errorf("extensionless upload not stored under its resolved name: %v", err)
	}

	if w := upload("junk.mid", []byte("junk")); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("junk upload = %d, want 422", w.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, "junk.mid")); err == nil {
		t.Error("rejected upload should not be stored")
	}
}

func TestListBackends(t *testing.T) {
	r, _ := newTestRouter(t, "legacy")
	w := do(t, r, http.MethodGet, "/api/v1/backends", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"modern"`) {
		t.Errorf("backends = %d %s", w.Code, w.Body.String())
	}
}
