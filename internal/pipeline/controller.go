// Package pipeline turns submitted preferences into a project: one
// description call, then a concurrent image fan-out over every area.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dreamhouse/internal/activity"
	"github.com/kalambet/dreamhouse/internal/capability"
	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/metrics"
	"github.com/kalambet/dreamhouse/internal/project"
)

// Options tunes a Controller. Zero values take defaults.
type Options struct {
	// Concurrency bounds in-flight image calls per run; 0 means unbounded.
	Concurrency int
	Activity    activity.Sink
}

// Controller sequences the two generation stages for each submission and
// publishes every intermediate snapshot to the project collection.
type Controller struct {
	svc         generation.Service
	projects    *project.Collection
	gate        *capability.Gate
	activity    activity.Sink
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	active   string
	progress *project.Progress
}

func NewController(svc generation.Service, projects *project.Collection, gate *capability.Gate, opts Options) *Controller {
	sink := opts.Activity
	if sink == nil {
		sink = activity.Nop{}
	}
	root, stop := context.WithCancel(context.Background())
	return &Controller{
		svc:         svc,
		projects:    projects,
		gate:        gate,
		activity:    sink,
		concurrency: opts.Concurrency,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		root:        root,
		stop:        stop,
	}
}

// Run is a submission whose skeleton has been published. The image stage
// continues in the background until Done is closed.
type Run struct {
	// Skeleton is the project as published after stage one.
	Skeleton design.Project

	done   chan struct{}
	result design.Project
	err    error
}

// Done is closed once the project has been committed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run commits or ctx ends. Canceling ctx does not stop
// the run.
func (r *Run) Wait(ctx context.Context) (design.Project, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return design.Project{}, ctx.Err()
	}
}

// Submit runs both stages and returns the committed project. Per-area image
// failures are recorded in the project; only validation and stage-one
// failures are returned as errors.
func (c *Controller) Submit(ctx context.Context, prefs design.Preferences) (design.Project, error) {
	run, err := c.Start(ctx, prefs)
	if err != nil {
		return design.Project{}, err
	}
	return run.Wait(ctx)
}

// Start validates prefs, runs stage one and publishes the skeleton. Stage two
// runs in the background, detached from ctx's cancellation so that a caller
// returning early does not abandon the project.
func (c *Controller) Start(ctx context.Context, prefs design.Preferences) (*Run, error) {
	if err := prefs.Validate(); err != nil {
		return nil, generation.Fail(generation.KindValidation, "", err)
	}
	prefs = prefs.Clone()
	name := prefs.ProjectName()
	c.activity.Record(fmt.Sprintf("Started designing %s", name))

	start := c.now()
	desc, err := c.svc.SynthesizeDescriptions(ctx, prefs)
	if err == nil {
		err = checkDescriptions(desc)
	}
	metrics.RecordStage("descriptions", c.now().Sub(start), err == nil)
	if err != nil {
		if c.observe(err) {
			c.activity.Record("Credential rejected while generating descriptions")
		}
		c.activity.Record(fmt.Sprintf("Design generation failed for %s", name))
		c.logger.Error("description stage failed", "error", err)
		return nil, generation.Fail(generation.KindStageOne, "", err)
	}

	skeleton := design.Project{
		ID:            c.newID(),
		Name:          name,
		Preferences:   prefs,
		CreatedAt:     c.now(),
		TrendAnalysis: desc.TrendAnalysis,
		Budget:        desc.Budget,
	}
	for _, a := range desc.Areas {
		skeleton.Designs = append(skeleton.Designs, design.NewRoom(a.Area, a.Description, a.CostEstimate))
	}
	c.projects.Publish(skeleton)
	c.setActive(skeleton.ID)
	c.logger.Info("project skeleton published", "project_id", skeleton.ID, "areas", len(skeleton.Designs))

	run := &Run{Skeleton: skeleton.Clone(), done: make(chan struct{})}
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopOnClose := context.AfterFunc(c.root, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stopOnClose()
		run.result, run.err = c.imageStage(bg, skeleton)
		close(run.done)
	}()
	return run, nil
}

func (c *Controller) imageStage(ctx context.Context, skeleton design.Project) (design.Project, error) {
	id := skeleton.ID
	pending, err := c.projects.Update(id, func(p design.Project) (design.Project, error) {
		for i := range p.Designs {
			if err := p.Designs[i].BeginImage(); err != nil {
				return p, err
			}
		}
		return p, nil
	})
	if err != nil {
		c.logger.Warn("project gone before image stage", "project_id", id, "error", err)
		return design.Project{}, err
	}

	start := c.now()
	FanOut(ctx, c.svc, pending.Preferences, pending.Designs, c.concurrency, func(res AreaResult) {
		c.applyAreaResult(id, res)
	})
	metrics.RecordStage("images", c.now().Sub(start), true)

	committed, err := c.projects.Commit(id)
	if err != nil {
		c.logger.Warn("commit skipped", "project_id", id, "error", err)
		return design.Project{}, err
	}
	ready, failed := committed.Counts()
	c.activity.Record(fmt.Sprintf("Project %s completed: %d of %d images ready", committed.Name, ready, len(committed.Designs)))
	c.logger.Info("project committed", "project_id", id, "ready", ready, "failed", failed)
	return committed, nil
}

// applyAreaResult stores one finished area into its own project. Results for
// a deleted project are dropped.
func (c *Controller) applyAreaResult(id string, res AreaResult) {
	_, err := c.projects.Update(id, func(p design.Project) (design.Project, error) {
		return p.WithRoom(res.Index, func(r *design.RoomDesign) error {
			*r = res.Room
			return nil
		})
	})
	if err != nil {
		c.logger.Debug("dropping image result", "project_id", id, "area", res.Room.Area, "error", err)
		return
	}

	var msg string
	if res.Err != nil {
		msg = fmt.Sprintf("Image failed for %s (%d/%d)", res.Room.Area, res.Completed, res.Total)
		c.activity.Record(fmt.Sprintf("Image generation failed for %s", res.Room.Area))
		if c.observe(res.Err) {
			c.activity.Record("Credential rejected while generating images")
		}
		c.logger.Warn("area image failed", "project_id", id, "area", res.Room.Area, "error", res.Err)
	} else {
		msg = fmt.Sprintf("Generated image for %s (%d/%d)", res.Room.Area, res.Completed, res.Total)
	}
	c.reportProgress(id, project.Progress{
		Area:      res.Room.Area,
		Completed: res.Completed,
		Total:     res.Total,
		Message:   msg,
	})
}

func (c *Controller) reportProgress(id string, p project.Progress) {
	c.projects.Progress(id, p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == id {
		c.progress = &p
	}
}

func (c *Controller) setActive(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = id
	c.progress = nil
}

// Active returns the ID of the session's current project, if any.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// CurrentProgress returns the latest progress of the active project. Runs
// superseded by a newer submission keep finishing their own project but no
// longer update it.
func (c *Controller) CurrentProgress() (project.Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == nil {
		return project.Progress{}, false
	}
	return *c.progress, true
}

// Reset forgets the active project without touching any run.
func (c *Controller) Reset() {
	c.setActive("")
}

// Close cancels in-flight runs and waits for them to finish.
func (c *Controller) Close() {
	c.stop()
	c.wg.Wait()
}

func (c *Controller) observe(err error) bool {
	return c.gate != nil && c.gate.ObserveError(err)
}

func checkDescriptions(d generation.Descriptions) error {
	if len(d.Areas) == 0 {
		return fmt.Errorf("%w: no areas returned", generation.ErrNoArtifact)
	}
	seen := make(map[string]struct{}, len(d.Areas))
	for _, a := range d.Areas {
		key := strings.ToLower(strings.TrimSpace(a.Area))
		if key == "" {
			return errors.New("description payload has an unnamed area")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("description payload repeats area %q", a.Area)
		}
		seen[key] = struct{}{}
	}
	return nil
}
