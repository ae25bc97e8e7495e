// Package video drives the optional fly-through video of a single room: a
// long-running remote operation that is started, polled until done, and then
// downloaded into a media store.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dreamhouse/internal/activity"
	"github.com/kalambet/dreamhouse/internal/capability"
	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/media"
	"github.com/kalambet/dreamhouse/internal/metrics"
	"github.com/kalambet/dreamhouse/internal/project"
	"github.com/kalambet/dreamhouse/internal/storage"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultMaxWait  = 15 * time.Minute
)

// Journal records video operation attempts.
type Journal interface {
	CreateVideoOperation(op storage.VideoOperation) error
	UpdateVideoOperation(op storage.VideoOperation) error
}

// Options tunes a Poller. Zero values take defaults.
type Options struct {
	Interval time.Duration
	MaxWait  time.Duration
	Activity activity.Sink
	Journal  Journal
}

type slot struct {
	projectID string
	index     int
}

// flight is one registered attempt. A retry replaces the entry for its slot,
// so release must only remove the entry it registered.
type flight struct {
	id     uint64
	cancel context.CancelFunc
}

// Poller starts video operations and polls them to completion. Each attempt
// runs in its own goroutine; deleting the project cancels its attempts and
// Close cancels all of them.
type Poller struct {
	svc      generation.Service
	projects *project.Collection
	gate     *capability.Gate
	store    media.Store
	interval time.Duration
	maxWait  time.Duration
	activity activity.Sink
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	nextID   uint64
	inflight map[slot]flight
}

func NewPoller(svc generation.Service, projects *project.Collection, gate *capability.Gate, store media.Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Activity == nil {
		opts.Activity = activity.Nop{}
	}
	root, stop := context.WithCancel(context.Background())
	p := &Poller{
		svc:      svc,
		projects: projects,
		gate:     gate,
		store:    store,
		interval: opts.Interval,
		maxWait:  opts.MaxWait,
		activity: opts.Activity,
		journal:  opts.Journal,
		logger:   slog.Default(),
		now:      time.Now,
		root:     root,
		stop:     stop,
		inflight: make(map[slot]flight),
	}
	projects.OnDelete(p.cancelProject)
	return p
}

// Attempt is a video generation that passed its preconditions.
type Attempt struct {
	// Project is the snapshot with the room marked pending.
	Project design.Project

	done   chan struct{}
	result design.Project
	err    error
}

// Done is closed once the attempt has reached ready or failed.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt finishes or ctx ends. Canceling ctx does not
// stop the attempt.
func (a *Attempt) Wait(ctx context.Context) (design.Project, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return design.Project{}, ctx.Err()
	}
}

// Generate starts a video for the room and blocks until it is ready or failed.
func (p *Poller) Generate(ctx context.Context, projectID string, index int) (design.Project, error) {
	a, err := p.Start(ctx, projectID, index)
	if err != nil {
		return design.Project{}, err
	}
	return a.Wait(ctx)
}

// Start checks the preconditions, marks the room's video pending and polls the
// remote operation in the background. A violated precondition returns a
// validation failure without calling the remote service or changing state.
func (p *Poller) Start(ctx context.Context, projectID string, index int) (*Attempt, error) {
	if p.gate == nil || !p.gate.Available() {
		return nil, generation.Invalid("video generation requires the premium capability")
	}

	current, err := p.projects.Get(projectID)
	if err != nil {
		return nil, err
	}
	room, err := current.Room(index)
	if err != nil {
		return nil, generation.Fail(generation.KindValidation, "", err)
	}
	if err := room.CanBeginVideo(); err != nil {
		return nil, generation.Fail(generation.KindValidation, room.Area, err)
	}
	source, err := media.ParseDataURI(room.Image)
	if err != nil {
		return nil, generation.Fail(generation.KindValidation, room.Area, err)
	}

	pending, err := p.projects.Update(projectID, func(prj design.Project) (design.Project, error) {
		return prj.WithRoom(index, func(r *design.RoomDesign) error {
			return r.BeginVideo()
		})
	})
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return nil, err
		}
		return nil, generation.Fail(generation.KindValidation, room.Area, err)
	}

	runCtx, cancel := context.WithTimeout(p.root, p.maxWait)
	key := slot{projectID: projectID, index: index}
	p.mu.Lock()
	p.nextID++
	f := flight{id: p.nextID, cancel: cancel}
	p.inflight[key] = f
	p.mu.Unlock()

	a := &Attempt{Project: pending, done: make(chan struct{})}
	p.logger.Info("video started", "project_id", projectID, "area", room.Area)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		a.result, a.err = p.run(runCtx, projectID, index, room, pending.Preferences, source)
		p.release(key, f)
		close(a.done)
	}()
	return a, nil
}

func (p *Poller) run(ctx context.Context, projectID string, index int, room design.RoomDesign, prefs design.Preferences, source media.Image) (design.Project, error) {
	rec := storage.VideoOperation{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		RoomIndex: index,
		Status:    storage.OperationStarting,
		CreatedAt: p.now(),
	}
	p.record(rec, true)

	url, err := p.generate(ctx, projectID, index, room, prefs, source, &rec)
	if err != nil {
		err = p.normalize(ctx, err)
		rec.Status = storage.OperationFailed
		rec.LastError = err.Error()
		p.record(rec, false)
		return p.fail(projectID, index, room.Area, err)
	}

	rec.Status = storage.OperationReady
	rec.VideoURL = url
	p.record(rec, false)

	done, err := p.projects.Update(projectID, func(prj design.Project) (design.Project, error) {
		return prj.WithRoom(index, func(r *design.RoomDesign) error {
			return r.CompleteVideo(url)
		})
	})
	if err != nil {
		p.logger.Debug("dropping video result", "project_id", projectID, "area", room.Area, "error", err)
		return design.Project{}, err
	}
	metrics.RecordVideo("ready")
	p.activity.Record(fmt.Sprintf("Video ready for %s", room.Area))
	p.logger.Info("video ready", "project_id", projectID, "area", room.Area, "polls", rec.Polls)
	return done, nil
}

func (p *Poller) generate(ctx context.Context, projectID string, index int, room design.RoomDesign, prefs design.Preferences, source media.Image, rec *storage.VideoOperation) (string, error) {
	op, err := p.svc.StartVideo(ctx, room.Description, prefs, source)
	if err != nil {
		return "", fmt.Errorf("starting video: %w", err)
	}
	rec.OperationName = op.Name
	rec.Status = storage.OperationRunning
	p.record(*rec, false)

	ref, err := p.await(ctx, op, rec)
	if err != nil {
		return "", err
	}

	body, err := p.svc.FetchVideo(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetching video: %w", err)
	}
	defer body.Close()

	key := media.VideoKey(projectID, index)
	url, err := p.store.Put(ctx, key, body, -1, media.ContentTypeFor(key))
	if err != nil {
		return "", fmt.Errorf("storing video: %w", err)
	}
	return url, nil
}

// await polls op every interval until it is done or ctx ends.
func (p *Poller) await(ctx context.Context, op generation.Operation, rec *storage.VideoOperation) (string, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := p.svc.PollVideo(ctx, op)
		metrics.RecordVideoPoll()
		rec.Polls++
		if err != nil {
			return "", fmt.Errorf("polling %s: %w", op.Name, err)
		}
		if !status.Done {
			p.record(*rec, false)
			continue
		}
		if status.Err != nil {
			return "", status.Err
		}
		if status.VideoRef == "" {
			return "", fmt.Errorf("%w: operation %s finished without a video", generation.ErrNoArtifact, op.Name)
		}
		return status.VideoRef, nil
	}
}

// normalize maps the attempt's own deadline to ErrOperationTimeout.
func (p *Poller) normalize(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, generation.ErrOperationTimeout) {
		return fmt.Errorf("%w after %s", generation.ErrOperationTimeout, p.maxWait)
	}
	return err
}

func (p *Poller) fail(projectID string, index int, area string, cause error) (design.Project, error) {
	failure := generation.Fail(generation.KindVideo, area, cause)

	outcome := "failed"
	switch {
	case errors.Is(cause, generation.ErrOperationTimeout):
		outcome = "timeout"
	case errors.Is(cause, context.Canceled):
		outcome = "canceled"
	}
	metrics.RecordVideo(outcome)

	if p.gate != nil && p.gate.ObserveError(cause) {
		p.activity.Record("Credential rejected while generating video")
	}

	updated, err := p.projects.Update(projectID, func(prj design.Project) (design.Project, error) {
		return prj.WithRoom(index, func(r *design.RoomDesign) error {
			return r.FailVideo(cause)
		})
	})
	if err != nil {
		p.logger.Debug("dropping video failure", "project_id", projectID, "area", area, "error", err)
		return design.Project{}, failure
	}
	p.activity.Record(fmt.Sprintf("Video generation failed for %s", area))
	p.logger.Warn("video failed", "project_id", projectID, "area", area, "error", cause)
	return updated, failure
}

func (p *Poller) record(rec storage.VideoOperation, create bool) {
	if p.journal == nil {
		return
	}
	rec.UpdatedAt = p.now()
	var err error
	if create {
		err = p.journal.CreateVideoOperation(rec)
	} else {
		err = p.journal.UpdateVideoOperation(rec)
	}
	if err != nil {
		p.logger.Warn("journaling video operation", "id", rec.ID, "error", err)
	}
}

func (p *Poller) release(key slot, f flight) {
	p.mu.Lock()
	if cur, ok := p.inflight[key]; ok && cur.id == f.id {
		delete(p.inflight, key)
	}
	p.mu.Unlock()
	f.cancel()
}

func (p *Poller) cancelProject(id string) {
	p.mu.Lock()
	var cancels []context.CancelFunc
	for k, f := range p.inflight {
		if k.projectID == id {
			cancels = append(cancels, f.cancel)
		}
	}
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		p.logger.Info("canceled video polls", "project_id", id, "count", len(cancels))
	}
}

// InFlight returns the number of attempts still polling.
func (p *Poller) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Close cancels every attempt and waits for them to finish.
func (p *Poller) Close() {
	p.stop()
	p.wg.Wait()
}
