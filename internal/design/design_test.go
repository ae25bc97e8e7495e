package design

import (
	"errors"
	"testing"
)

func validPrefs() Preferences {
	return Preferences{
		Style:         "Modern",
		Country:       "Portugal",
		Bedrooms:      3,
		Bathrooms:     2,
		Stories:       2,
		SquareFootage: 2400,
		Features:      []string{"Fireplace", "Home Office"},
		ColorPalette:  "Warm Neutrals",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validPrefs().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Preferences){
		"no style":          func(p *Preferences) { p.Style = "  " },
		"zero bedrooms":     func(p *Preferences) { p.Bedrooms = 0 },
		"negative baths":    func(p *Preferences) { p.Bathrooms = -1 },
		"zero stories":      func(p *Preferences) { p.Stories = 0 },
		"zero footage":      func(p *Preferences) { p.SquareFootage = 0 },
		"duplicate feature": func(p *Preferences) { p.Features = []string{"Fireplace", "fireplace"} },
		"empty feature":     func(p *Preferences) { p.Features = []string{""} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPrefs()
			mutate(&p)
			err := p.Validate()
			if !errors.Is(err, ErrInvalidPreferences) {
				t.Errorf("Validate() = %v, want ErrInvalidPreferences", err)
			}
		})
	}
}

func TestProjectName(t *testing.T) {
	if got := validPrefs().ProjectName(); got != "My Modern House" {
		t.Errorf("ProjectName() = %q, want %q", got, "My Modern House")
	}
}

func TestVideoRequiresReadyImage(t *testing.T) {
	r := NewRoom("Kitchen", "a kitchen", "$40k")
	if err := r.BeginVideo(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("BeginVideo on unstarted image = %v, want ErrInvalidTransition", err)
	}
	if r.VideoState != VideoNone {
		t.Errorf("VideoState = %q, want %q", r.VideoState, VideoNone)
	}

	if err := r.BeginImage(); err != nil {
		t.Fatalf("BeginImage: %v", err)
	}
	if err := r.BeginVideo(); err == nil {
		t.Fatal("BeginVideo on pending image should fail")
	}
	if err := r.CompleteImage("data:image/png;base64,AA=="); err != nil {
		t.Fatalf("CompleteImage: %v", err)
	}
	if err := r.BeginVideo(); err != nil {
		t.Fatalf("BeginVideo: %v", err)
	}
	if err := r.BeginVideo(); err == nil {
		t.Fatal("second BeginVideo while pending should fail")
	}
	if err := r.CompleteVideo("/media/v.mp4"); err != nil {
		t.Fatalf("CompleteVideo: %v", err)
	}
	if r.VideoState != VideoReady || r.Video != "/media/v.mp4" {
		t.Errorf("video = %q/%q, want ready with URL", r.VideoState, r.Video)
	}
}

func TestFailImageKeepsDescription(t *testing.T) {
	r := NewRoom("Kitchen", "marble island", "$40k")
	_ = r.BeginImage()
	r.FailImage(errors.New("quota"))

	if r.ImageState != ImageFailed {
		t.Errorf("ImageState = %q, want %q", r.ImageState, ImageFailed)
	}
	if r.Description != "marble island" || r.CostEstimate != "$40k" {
		t.Errorf("description/cost lost: %+v", r)
	}
	if r.ImageError != "quota" {
		t.Errorf("ImageError = %q, want %q", r.ImageError, "quota")
	}
	if err := r.BeginImage(); err != nil {
		t.Errorf("retrying a failed image: %v", err)
	}
}

func TestWithRoomCopyOnWrite(t *testing.T) {
	p := Project{
		ID:          "p1",
		Preferences: validPrefs(),
		Designs:     []RoomDesign{NewRoom("Exterior", "", ""), NewRoom("Foyer", "", "")},
	}

	next, err := p.WithRoom(1, func(r *RoomDesign) error { return r.BeginImage() })
	if err != nil {
		t.Fatalf("WithRoom: %v", err)
	}
	if p.Designs[1].ImageState != ImageUnstarted {
		t.Errorf("original mutated: %q", p.Designs[1].ImageState)
	}
	if next.Designs[1].ImageState != ImagePending {
		t.Errorf("copy ImageState = %q, want %q", next.Designs[1].ImageState, ImagePending)
	}

	next.Preferences.Features[0] = "Balcony"
	if p.Preferences.Features[0] != "Fireplace" {
		t.Error("Clone shares the features slice")
	}

	if _, err := p.WithRoom(5, func(*RoomDesign) error { return nil }); !errors.Is(err, ErrRoomIndex) {
		t.Errorf("WithRoom(5) = %v, want ErrRoomIndex", err)
	}
}

func TestWithRoomErrorLeavesProjectUnchanged(t *testing.T) {
	p := Project{Designs: []RoomDesign{NewRoom("Kitchen", "", "")}}
	got, err := p.WithRoom(0, func(r *RoomDesign) error { return r.BeginVideo() })
	if err == nil {
		t.Fatal("expected error")
	}
	if got.Designs[0].VideoState != VideoNone {
		t.Errorf("VideoState = %q, want %q", got.Designs[0].VideoState, VideoNone)
	}
}
