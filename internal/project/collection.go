// Package project holds the in-memory collection of projects and broadcasts
// their changes.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/dreamhouse/internal/design"
)

var (
	ErrNotFound         = errors.New("project not found")
	ErrAlreadyCommitted = errors.New("project already committed")
)

type entry struct {
	project   design.Project
	committed bool
}

// Collection is the only shared mutable structure of the service. Every
// change stores a new Project value; readers get their own copies.
type Collection struct {
	broker *Broker
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	committed []string // newest first
	onDelete  []func(id string)
}

// NewCollection returns an empty collection. broker may be nil.
func NewCollection(broker *Broker) *Collection {
	return &Collection{
		broker:  broker,
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
}

// Publish stores p as the latest snapshot of its project, inserting it as a
// draft when it is new.
func (c *Collection) Publish(p design.Project) {
	snap := p.Clone()
	c.mu.Lock()
	if e, ok := c.entries[p.ID]; ok {
		e.project = snap
	} else {
		c.entries[p.ID] = &entry{project: snap}
	}
	c.emit(EventSnapshot, snap)
	c.mu.Unlock()
}

// Update applies fn to the latest snapshot of id and stores the result. fn
// receives a private copy and runs under the collection lock, so it must not
// block. ErrNotFound is returned when the project has been deleted.
func (c *Collection) Update(id string, fn func(design.Project) (design.Project, error)) (design.Project, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return design.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := fn(e.project.Clone())
	if err != nil {
		c.mu.Unlock()
		return design.Project{}, err
	}
	next.ID = id
	e.project = next.Clone()
	c.emit(EventSnapshot, e.project)
	c.mu.Unlock()
	return next, nil
}

// Commit marks a draft as part of the committed list. A project is committed
// at most once.
func (c *Collection) Commit(id string) (design.Project, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return design.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.committed {
		c.mu.Unlock()
		return design.Project{}, fmt.Errorf("%w: %s", ErrAlreadyCommitted, id)
	}
	e.committed = true
	c.committed = append([]string{id}, c.committed...)
	snap := e.project.Clone()
	c.emit(EventCommitted, snap)
	c.mu.Unlock()
	return snap, nil
}

// Get returns the latest snapshot of id, committed or not.
func (c *Collection) Get(id string) (design.Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return design.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.project.Clone(), nil
}

// Committed reports whether id has been committed.
func (c *Collection) Committed(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return ok && e.committed
}

// List returns committed projects, newest first.
func (c *Collection) List() []design.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]design.Project, 0, len(c.committed))
	for _, id := range c.committed {
		if e, ok := c.entries[id]; ok {
			out = append(out, e.project.Clone())
		}
	}
	return out
}

// Delete removes id. Hooks registered with OnDelete run after removal.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	if _, ok := c.entries[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.entries, id)
	for i, cid := range c.committed {
		if cid == id {
			c.committed = append(c.committed[:i:i], c.committed[i+1:]...)
			break
		}
	}
	hooks := append([]func(string){}, c.onDelete...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	c.broker.Publish(Event{Type: EventDeleted, ProjectID: id})
	c.logger.Info("project deleted", "project_id", id)
	return nil
}

// OnDelete registers fn to run whenever a project is deleted.
func (c *Collection) OnDelete(fn func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDelete = append(c.onDelete, fn)
}

// Progress broadcasts a progress event for id without changing the project.
func (c *Collection) Progress(id string, p Progress) {
	c.broker.Publish(Event{Type: EventProgress, ProjectID: id, Progress: &p})
}

// emit is called with c.mu held so subscribers see snapshots in store order.
func (c *Collection) emit(t EventType, p design.Project) {
	c.broker.Publish(Event{Type: t, ProjectID: p.ID, Project: &p})
}
