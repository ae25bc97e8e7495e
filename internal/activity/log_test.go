package activity

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/dreamhouse/internal/storage"
)

func openLog(t *testing.T, limit int) *Log {
	t.Helper()
	s, err := storage.Open(storage.Memory)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewLog(s, limit)
}

func TestLogKeepsNewestEntries(t *testing.T) {
	l := openLog(t, 0)
	for i := 0; i < 30; i++ {
		l.Record(fmt.Sprintf("event %d", i))
	}

	entries, err := l.Recent()
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != DefaultLimit {
		t.Fatalf("len = %d, want %d", len(entries), DefaultLimit)
	}
	if entries[0].Message != "event 29" {
		t.Errorf("newest = %q, want %q", entries[0].Message, "event 29")
	}
	if entries[len(entries)-1].Message != "event 10" {
		t.Errorf("oldest = %q, want %q", entries[len(entries)-1].Message, "event 10")
	}
}

func TestEntryString(t *testing.T) {
	e := Entry{Time: time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local), Message: "Project completed"}
	if got := e.String(); got != "[15:04:05] Project completed" {
		t.Errorf("String() = %q", got)
	}
}

type failingStore struct{ saves int }

func (f *failingStore) SaveActivity(storage.Activity) error {
	f.saves++
	return fmt.Errorf("disk full")
}
func (f *failingStore) RecentActivity(int) ([]storage.Activity, error) {
	return nil, fmt.Errorf("disk full")
}
func (f *failingStore) PruneActivity(int) error { return nil }

func TestLogSwallowsStoreErrors(t *testing.T) {
	f := &failingStore{}
	l := NewLog(f, 5)
	l.Record("hello")
	if f.saves != 1 {
		t.Errorf("saves = %d, want 1", f.saves)
	}
	if _, err := l.Recent(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Recent() error = %v", err)
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = Nop{}
	s.Record("ignored")
}
