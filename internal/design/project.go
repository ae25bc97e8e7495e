package design

import (
	"errors"
	"fmt"
	"time"
)

// ErrRoomIndex is returned for a room index outside the project's designs.
var ErrRoomIndex = errors.New("room index out of range")

// Budget is the overall cost estimate returned with the descriptions.
type Budget struct {
	OverallEstimate string `json:"overallEstimate"`
	Summary         string `json:"summary"`
}

// Project groups the designs produced from one submission. Projects are
// treated as immutable snapshots: every change goes through a method that
// returns a new value.
type Project struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Preferences   Preferences  `json:"preferences"`
	CreatedAt     time.Time    `json:"createdAt"`
	Designs       []RoomDesign `json:"designs"`
	TrendAnalysis string       `json:"trendAnalysis,omitempty"`
	Budget        *Budget      `json:"budget,omitempty"`
}

// Clone returns a deep copy of p.
func (p Project) Clone() Project {
	p.Preferences = p.Preferences.Clone()
	if p.Designs != nil {
		p.Designs = append([]RoomDesign(nil), p.Designs...)
	}
	if p.Budget != nil {
		b := *p.Budget
		p.Budget = &b
	}
	return p
}

// Room returns the design at index.
func (p Project) Room(index int) (RoomDesign, error) {
	if index < 0 || index >= len(p.Designs) {
		return RoomDesign{}, fmt.Errorf("%w: %d (project has %d rooms)", ErrRoomIndex, index, len(p.Designs))
	}
	return p.Designs[index], nil
}

// WithRoom returns a copy of p with fn applied to the room at index. p itself
// is never modified; if fn fails the error is returned and no copy escapes.
func (p Project) WithRoom(index int, fn func(*RoomDesign) error) (Project, error) {
	if _, err := p.Room(index); err != nil {
		return p, err
	}
	next := p.Clone()
	if err := fn(&next.Designs[index]); err != nil {
		return p, err
	}
	return next, nil
}

// Counts returns how many images are ready and failed.
func (p Project) Counts() (ready, failed int) {
	for _, d := range p.Designs {
		switch d.ImageState {
		case ImageReady:
			ready++
		case ImageFailed:
			failed++
		}
	}
	return ready, failed
}
