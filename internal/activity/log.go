// Package activity keeps the short, user-facing log of what the service did.
package activity

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/dreamhouse/internal/storage"
)

// DefaultLimit is the number of entries kept.
const DefaultLimit = 20

// Sink receives activity messages. Record never fails; sinks log their own
// errors.
type Sink interface {
	Record(message string)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Record(string) {}

// Store is the persistence the log needs.
type Store interface {
	SaveActivity(a storage.Activity) error
	RecentActivity(limit int) ([]storage.Activity, error)
	PruneActivity(keep int) error
}

// Entry is one rendered activity line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Local().Format("15:04:05"), e.Message)
}

// Log records messages into a Store and keeps only the newest limit entries.
type Log struct {
	store  Store
	limit  int
	logger *slog.Logger
}

func NewLog(store Store, limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{store: store, limit: limit, logger: slog.Default()}
}

func (l *Log) Record(message string) {
	if err := l.store.SaveActivity(storage.Activity{CreatedAt: time.Now(), Message: message}); err != nil {
		l.logger.Warn("recording activity failed", "error", err)
		return
	}
	if err := l.store.PruneActivity(l.limit); err != nil {
		l.logger.Warn("pruning activity failed", "error", err)
	}
	l.logger.Debug("activity", "message", message)
}

// Recent returns the kept entries, newest first.
func (l *Log) Recent() ([]Entry, error) {
	rows, err := l.store.RecentActivity(l.limit)
	if err != nil {
		return nil, fmt.Errorf("reading activity: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Time: r.CreatedAt, Message: r.Message})
	}
	return entries, nil
}
