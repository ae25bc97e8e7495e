// Package recolor replaces one room's image with a recolored version of
// itself, one request per project at a time.
package recolor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/dreamhouse/internal/activity"
	"github.com/kalambet/dreamhouse/internal/capability"
	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/media"
	"github.com/kalambet/dreamhouse/internal/metrics"
	"github.com/kalambet/dreamhouse/internal/project"
)

// ErrInProgress is returned when the project already has a recolor in flight.
var ErrInProgress = errors.New("a recolor is already in progress for this project")

var palettes = map[string]string{
	"serene-blues":    "serene light blues and crisp whites",
	"earthy-greens":   "deep earthy greens and warm browns",
	"warm-terracotta": "warm terracotta and soft creams",
	"modern-grays":    "sleek modern grays and deep charcoals",
	"jewel-tones":     "rich emerald green and royal purple jewel tones",
}

// Palettes returns the names of the built-in palettes, sorted.
func Palettes() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveDirective maps a palette name to its directive. Anything else is
// used verbatim as a free-form directive.
func ResolveDirective(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", generation.Invalid("recolor directive is required")
	}
	if d, ok := palettes[strings.ToLower(s)]; ok {
		return d, nil
	}
	return s, nil
}

// Recolorer runs recolor transactions against the project collection.
type Recolorer struct {
	svc      generation.Service
	projects *project.Collection
	gate     *capability.Gate
	activity activity.Sink
	logger   *slog.Logger

	mu   sync.Mutex
	busy map[string]int
}

func New(svc generation.Service, projects *project.Collection, gate *capability.Gate, sink activity.Sink) *Recolorer {
	if sink == nil {
		sink = activity.Nop{}
	}
	return &Recolorer{
		svc:      svc,
		projects: projects,
		gate:     gate,
		activity: sink,
		logger:   slog.Default(),
		busy:     make(map[string]int),
	}
}

// Recolor replaces the image of room index with a recolored version. Only that
// room's image changes; its video is untouched. On failure the prior image is
// kept. A second call for the same project while one is in flight fails with
// ErrInProgress.
func (r *Recolorer) Recolor(ctx context.Context, projectID string, index int, directive string) (design.Project, error) {
	directive, err := ResolveDirective(directive)
	if err != nil {
		return design.Project{}, err
	}

	current, err := r.projects.Get(projectID)
	if err != nil {
		return design.Project{}, err
	}
	room, err := current.Room(index)
	if err != nil {
		return design.Project{}, generation.Fail(generation.KindValidation, "", err)
	}
	if room.ImageState != design.ImageReady {
		return design.Project{}, generation.Invalid("%s has no ready image to recolor (image is %s)", room.Area, room.ImageState)
	}
	source, err := media.ParseDataURI(room.Image)
	if err != nil {
		return design.Project{}, generation.Fail(generation.KindValidation, room.Area, err)
	}

	if !r.acquire(projectID, index) {
		return design.Project{}, generation.Fail(generation.KindValidation, room.Area, ErrInProgress)
	}
	defer r.release(projectID)

	r.logger.Info("recolor started", "project_id", projectID, "area", room.Area)
	img, err := r.svc.RecolorImage(ctx, source, directive)
	if err == nil && img.Empty() {
		err = fmt.Errorf("%w: empty image", generation.ErrNoArtifact)
	}
	if err != nil {
		metrics.RecordRecolor("failed")
		if r.gate != nil && r.gate.ObserveError(err) {
			r.activity.Record("Credential rejected while recoloring")
		}
		r.activity.Record(fmt.Sprintf("Recolor failed for %s", room.Area))
		r.logger.Warn("recolor failed", "project_id", projectID, "area", room.Area, "error", err)
		return design.Project{}, generation.Fail(generation.KindRecolor, room.Area, err)
	}

	updated, err := r.projects.Update(projectID, func(p design.Project) (design.Project, error) {
		return p.WithRoom(index, func(rd *design.RoomDesign) error {
			return rd.ReplaceImage(img.DataURI())
		})
	})
	if err != nil {
		metrics.RecordRecolor("dropped")
		r.logger.Debug("dropping recolor result", "project_id", projectID, "area", room.Area, "error", err)
		return design.Project{}, err
	}
	metrics.RecordRecolor("applied")
	r.activity.Record(fmt.Sprintf("Recolored %s", room.Area))
	return updated, nil
}

// InFlight reports the room index being recolored in projectID, if any.
func (r *Recolorer) InFlight(projectID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.busy[projectID]
	return i, ok
}

func (r *Recolorer) acquire(projectID string, index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.busy[projectID]; ok {
		return false
	}
	r.busy[projectID] = index
	return true
}

func (r *Recolorer) release(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.busy, projectID)
}
