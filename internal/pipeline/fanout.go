package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/metrics"
)

// AreaResult reports one finished area. Completed counts finished areas
// including this one, so successive results advance 1..Total.
type AreaResult struct {
	Index     int
	Room      design.RoomDesign
	Err       error
	Completed int
	Total     int
}

// FanOut synthesizes one image per room concurrently. A failed area is
// recorded as a failed room and never affects its siblings; FanOut itself
// does not fail. The returned slice has the same length and order as rooms
// regardless of completion order. onDone, if non-nil, is called once per area
// in completion order; calls are serialized.
func FanOut(ctx context.Context, svc generation.Service, prefs design.Preferences, rooms []design.RoomDesign, limit int, onDone func(AreaResult)) []design.RoomDesign {
	results := make([]design.RoomDesign, len(rooms))
	total := len(rooms)

	var (
		mu        sync.Mutex
		completed int
	)
	finish := func(i int, room design.RoomDesign, err error) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = room
		completed++
		if onDone != nil {
			onDone(AreaResult{Index: i, Room: room, Err: err, Completed: completed, Total: total})
		}
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, room := range rooms {
		g.Go(func() error {
			if room.ImageState != design.ImagePending {
				if err := room.BeginImage(); err != nil {
					finish(i, room, nil)
					return nil
				}
			}

			img, err := svc.SynthesizeImage(ctx, room.Description, prefs)
			if err == nil && img.Empty() {
				err = fmt.Errorf("%w: empty image", generation.ErrNoArtifact)
			}
			if err != nil {
				failure := generation.Fail(generation.KindAreaImage, room.Area, err)
				room.FailImage(err)
				metrics.RecordAreaImage("failed")
				finish(i, room, failure)
				return nil
			}

			room.CompleteImage(img.DataURI())
			metrics.RecordAreaImage("ready")
			finish(i, room, nil)
			return nil
		})
	}
	g.Wait()
	return results
}
