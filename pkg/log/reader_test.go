package log

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	now := time.Now()
	path := writeLog(t, []Event{
		{Timestamp: now, ConnectionID: "conn-1", Category: CategoryMessage},
		{Timestamp: now, ConnectionID: "conn-2", Category: CategoryState},
		{Timestamp: now, ConnectionID: "conn-3", Category: CategoryError},
	})

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got := readAll(t, r)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].ConnectionID != "conn-1" || got[2].ConnectionID != "conn-3" {
		t.Errorf("order = %q..%q", got[0].ConnectionID, got[2].ConnectionID)
	}
}

func TestReaderEmptyFile(t *testing.T) {
	path := writeLog(t, nil)

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Now()
	events := []Event{
		{Timestamp: base, ConnectionID: "c1", DeviceID: "Light1", Direction: DirectionIn, Category: CategoryMessage},
		{Timestamp: base.Add(time.Second), ConnectionID: "c1", DeviceID: "Light1", Direction: DirectionOut, Category: CategoryState},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "c2", DeviceID: "Lock1", Direction: DirectionIn, Category: CategoryError},
	}
	path := writeLog(t, events)

	state := CategoryState
	in := DirectionIn
	start := base.Add(time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"connection", Filter{ConnectionID: "c1"}, []string{"c1", "c1"}},
		{"device", Filter{DeviceID: "Lock1"}, []string{"c2"}},
		{"category", Filter{Category: &state}, []string{"c1"}},
		{"direction", Filter{Direction: &in}, []string{"c1", "c2"}},
		{"time start", Filter{TimeStart: &start}, []string{"c1", "c2"}},
		{"none", Filter{DeviceID: "Therm1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			got := readAll(t, r)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ConnectionID != tt.want[i] {
					t.Errorf("event %d ConnectionID = %q, want %q", i, got[i].ConnectionID, tt.want[i])
				}
			}
		})
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.hlog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Log(Event{ConnectionID: "before"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	l.Log(Event{ConnectionID: "after"})

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got := readAll(t, r)
	if len(got) != 1 || got[0].ConnectionID != "before" {
		t.Errorf("events = %+v, want only 'before'", got)
	}
}

func TestFileLoggerAppendsUnderOneHeader(t *testing.T) {
	path := writeLog(t, []Event{{ConnectionID: "first"}})

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l.Log(Event{ConnectionID: "second"})
	l.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := NewDecoder(f)
	h, err := ReadHeader(dec)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.Magic != FileMagic || h.Version != FormatVersion || h.Created.IsZero() {
		t.Errorf("header = %+v", h)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got := readAll(t, r)
	if len(got) != 2 || got[0].ConnectionID != "first" || got[1].ConnectionID != "second" {
		t.Errorf("events = %+v", got)
	}
}

func TestReaderZeroLengthFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.hlog")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestForeignFilesRejected(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "notes.hlog")
	if err := os.WriteFile(text, []byte("hello world\n"), 0644); err != nil {
		t.Fatal(err)
	}

	future := filepath.Join(dir, "future.hlog")
	f, err := os.Create(future)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewEncoder(f).Encode(FileHeader{Magic: FileMagic, Version: FormatVersion + 1}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"plain text", text, ErrNotHubLog},
		{"newer format", future, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("NewReader() error = %v, want %v", err, tt.want)
			}
			if _, err := NewFileLogger(tt.path); !errors.Is(err, tt.want) {
				t.Errorf("NewFileLogger() error = %v, want %v", err, tt.want)
			}
		})
	}
}
