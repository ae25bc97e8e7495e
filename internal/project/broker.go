package project

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/dreamhouse/internal/design"
)

// EventType names a change to a project.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventProgress  EventType = "progress"
	EventCommitted EventType = "committed"
	EventDeleted   EventType = "deleted"
)

// Progress describes how far a run's image stage has advanced.
type Progress struct {
	Area      string `json:"area"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// Event is delivered to subscribers of a project.
type Event struct {
	Type      EventType       `json:"type"`
	ProjectID string          `json:"projectId"`
	Project   *design.Project `json:"project,omitempty"`
	Progress  *Progress       `json:"progress,omitempty"`
	At        time.Time       `json:"at"`
}

// AllProjects subscribes to events of every project.
const AllProjects = "*"

// Broker fans project events out to channel subscribers. Slow subscribers
// miss events rather than block publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	nextID atomic.Uint64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe returns a channel receiving events for projectID (or AllProjects)
// and a function that unsubscribes and closes the channel.
func (b *Broker) Subscribe(projectID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.nextID.Add(1)

	b.mu.Lock()
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[uint64]chan Event)
	}
	b.subs[projectID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[projectID], id)
			if len(b.subs[projectID]) == 0 {
				delete(b.subs, projectID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev without blocking.
func (b *Broker) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, key := range []string{ev.ProjectID, AllProjects} {
		for _, ch := range b.subs[key] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}
