package recording

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acolita/appliance-shell/internal/testing/fakes/fakeclock"
	"github.com/acolita/appliance-shell/internal/testing/fakes/fakefs"
)

var start = time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC)

func readLines(t *testing.T, fs *fakefs.FS, path string) []string {
	t.Helper()
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestEventMarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{"output event", Event{Time: 1.5, Type: "o", Data: "AP# "}, `[1.5,"o","AP# "]`},
		{"input event", Event{Time: 0, Type: "i", Data: "configure\n"}, `[0,"i","configure\n"]`},
		{"escape sequences", Event{Time: 2, Type: "o", Data: "\x1b[0m"}, `[2,"o","\u001b[0m"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("MarshalJSON() error = %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("MarshalJSON() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestNewRecorder_WritesHeader(t *testing.T) {
	fs := fakefs.New()
	clk := fakeclock.New(start)

	rec, err := NewRecorder("/var/rec", "01J0ABC", "lobby-ap1", fs, clk)
	if err != nil {
		t.Fatalf("NewRecorder() error: %v", err)
	}
	defer rec.Close()

	want := "/var/rec/01J0ABC_20260304_102030.cast"
	if rec.Path() != want {
		t.Errorf("Path() = %q, want %q", rec.Path(), want)
	}
	if !fs.IsDir("/var/rec") {
		t.Error("recording directory not created")
	}

	lines := readLines(t, fs, want)
	var h Header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("header is not JSON: %v", err)
	}
	if h.Version != 2 || h.Width != DefaultWidth || h.Height != DefaultHeight {
		t.Errorf("header = %+v", h)
	}
	if h.Timestamp != start.Unix() {
		t.Errorf("Timestamp = %d, want %d", h.Timestamp, start.Unix())
	}
	if h.Title != "lobby-ap1" {
		t.Errorf("Title = %q", h.Title)
	}
}

func TestNewRecorder_ExistingFile(t *testing.T) {
	fs := fakefs.New()
	clk := fakeclock.New(start)
	fs.AddFile("/var/rec/s1_20260304_102030.cast", []byte("x"))

	if _, err := NewRecorder("/var/rec", "s1", "", fs, clk); err == nil {
		t.Fatal("NewRecorder() over existing file expected error")
	}
}

func TestRecorderEvents(t *testing.T) {
	fs := fakefs.New()
	clk := fakeclock.New(start)
	rec, err := NewRecorder("/r", "s1", "ap", fs, clk)
	if err != nil {
		t.Fatal(err)
	}

	clk.Advance(1500 * time.Millisecond)
	_ = rec.RecordInput("configure\n")
	clk.Advance(500 * time.Millisecond)
	_ = rec.RecordOutput("AP(config)# ")
	_ = rec.RecordMaskedInput(6)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	lines := readLines(t, fs, rec.Path())
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), lines)
	}
	want := []string{
		`[1.5,"i","configure\n"]`,
		`[2,"o","AP(config)# "]`,
		`[2,"i","******"]`,
	}
	for i, w := range want {
		if lines[i+1] != w {
			t.Errorf("event %d = %s, want %s", i, lines[i+1], w)
		}
	}
}

func TestRecorderRecordAfterClose(t *testing.T) {
	fs := fakefs.New()
	rec, err := NewRecorder("/r", "s1", "", fs, fakeclock.New(start))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := rec.RecordOutput("late"); err != nil {
		t.Errorf("RecordOutput after Close = %v, want nil", err)
	}
	if n := len(readLines(t, fs, rec.Path())); n != 1 {
		t.Errorf("got %d lines after close, want header only", n)
	}
}

func TestRecorderConcurrentRecording(t *testing.T) {
	fs := fakefs.New()
	rec, err := NewRecorder("/r", "s1", "", fs, fakeclock.New(start))
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = rec.RecordOutput("x")
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, fs, rec.Path())
	if len(lines) != 201 {
		t.Fatalf("got %d lines, want 201", len(lines))
	}
	for _, l := range lines[1:] {
		var ev []interface{}
		if err := json.Unmarshal([]byte(l), &ev); err != nil {
			t.Fatalf("corrupt event line %q: %v", l, err)
		}
	}
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager("/r", false, fakefs.New(), fakeclock.New(start))

	rec, err := m.StartRecording("s1", "ap")
	if err != nil || rec != nil {
		t.Errorf("StartRecording() = %v, %v; want nil, nil", rec, err)
	}
	if m.IsEnabled() {
		t.Error("IsEnabled() = true")
	}
	if err := m.StopRecording("s1"); err != nil {
		t.Errorf("StopRecording() error: %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	fs := fakefs.New()
	clk := fakeclock.New(start)
	m := NewManager("/r", true, fs, clk)

	rec, err := m.StartRecording("s1", "ap1")
	if err != nil {
		t.Fatalf("StartRecording() error: %v", err)
	}
	if got := m.RecordingPath("s1"); got != rec.Path() {
		t.Errorf("RecordingPath() = %q, want %q", got, rec.Path())
	}

	clk.Advance(time.Second)
	replacement, err := m.StartRecording("s1", "ap1")
	if err != nil {
		t.Fatalf("StartRecording(replace) error: %v", err)
	}
	if err := rec.RecordOutput("dropped"); err != nil {
		t.Errorf("old recorder should be closed quietly: %v", err)
	}
	if replacement.Path() == rec.Path() {
		t.Error("replacement should use a new file")
	}

	if _, err := m.StartRecording("s2", "ap2"); err != nil {
		t.Fatal(err)
	}
	if err := m.StopRecording("s1"); err != nil {
		t.Errorf("StopRecording() error: %v", err)
	}
	if m.RecordingPath("s1") != "" {
		t.Error("RecordingPath after stop should be empty")
	}

	m.CloseAll()
	if m.RecordingPath("s2") != "" {
		t.Error("CloseAll should drop every recorder")
	}
	if len(fs.Files()) != 3 {
		t.Errorf("files = %v, want 3 recordings", fs.Files())
	}
}
