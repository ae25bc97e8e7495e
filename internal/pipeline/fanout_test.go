package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/generation"
	"github.com/kalambet/dreamhouse/internal/media"
)

func rooms(areas ...string) []design.RoomDesign {
	out := make([]design.RoomDesign, len(areas))
	for i, a := range areas {
		out[i] = design.NewRoom(a, a+" description", "")
	}
	return out
}

func TestFanOut_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	svc := &mockService{
		imageFn: func(context.Context, string, design.Preferences) (media.Image, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return media.Image{MIMEType: "image/png", Data: []byte{1}}, nil
		},
	}

	var calls []int
	got := FanOut(context.Background(), svc, testPrefs(), rooms("a", "b", "c", "d", "e", "f"), 2, func(r AreaResult) {
		calls = append(calls, r.Completed)
	})

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
	if len(got) != 6 || len(calls) != 6 {
		t.Fatalf("results = %d, callbacks = %d; want 6, 6", len(got), len(calls))
	}
	for i, n := range calls {
		if n != i+1 {
			t.Errorf("callback %d Completed = %d", i, n)
		}
	}
}

func TestFanOut_FailureIsolation(t *testing.T) {
	boom := errors.New("boom")
	svc := &mockService{
		imageFn: func(_ context.Context, description string, _ design.Preferences) (media.Image, error) {
			switch description {
			case "b description":
				return media.Image{}, boom
			case "c description":
				return media.Image{}, nil
			}
			return media.Image{MIMEType: "image/png", Data: []byte(description)}, nil
		},
	}

	var failures []error
	got := FanOut(context.Background(), svc, testPrefs(), rooms("a", "b", "c", "d"), 0, func(r AreaResult) {
		if r.Err != nil {
			failures = append(failures, r.Err)
		}
	})

	want := []design.ImageState{design.ImageReady, design.ImageFailed, design.ImageFailed, design.ImageReady}
	for i, s := range want {
		if got[i].ImageState != s {
			t.Errorf("[%d] ImageState = %q, want %q", i, got[i].ImageState, s)
		}
	}
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(failures))
	}
	for _, err := range failures {
		if kind, _ := generation.KindOf(err); kind != generation.KindAreaImage {
			t.Errorf("failure kind = %v, want area_image", kind)
		}
	}
	if got[1].ImageError != "boom" {
		t.Errorf("ImageError = %q", got[1].ImageError)
	}
}

func TestFanOut_Empty(t *testing.T) {
	got := FanOut(context.Background(), &mockService{}, testPrefs(), nil, 0, nil)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
