package design

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a state change is not allowed from
// the room's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// ImageState tracks the image artifact of one area.
type ImageState string

const (
	ImageUnstarted ImageState = "unstarted"
	ImagePending   ImageState = "pending"
	ImageReady     ImageState = "ready"
	ImageFailed    ImageState = "failed"
)

// VideoState tracks the optional fly-through video of one area.
type VideoState string

const (
	VideoNone    VideoState = "none"
	VideoPending VideoState = "pending"
	VideoReady   VideoState = "ready"
	VideoFailed  VideoState = "failed"
)

// RoomDesign is the design of a single area. Image holds a data URI once the
// image is ready; Video holds a locally addressable URL once the video is ready.
type RoomDesign struct {
	Area         string     `json:"area"`
	Description  string     `json:"description"`
	CostEstimate string     `json:"costEstimate,omitempty"`
	Image        string     `json:"image,omitempty"`
	ImageState   ImageState `json:"imageState"`
	ImageError   string     `json:"imageError,omitempty"`
	Video        string     `json:"video,omitempty"`
	VideoState   VideoState `json:"videoState"`
	VideoError   string     `json:"videoError,omitempty"`
}

// NewRoom returns a room with no artifacts yet.
func NewRoom(area, description, costEstimate string) RoomDesign {
	return RoomDesign{
		Area:         area,
		Description:  description,
		CostEstimate: costEstimate,
		ImageState:   ImageUnstarted,
		VideoState:   VideoNone,
	}
}

func transitionErr(area, what string, from any) error {
	return fmt.Errorf("%w: %s %s from %v", ErrInvalidTransition, area, what, from)
}

// BeginImage moves the image to pending. A failed image may be retried.
func (r *RoomDesign) BeginImage() error {
	switch r.ImageState {
	case ImageUnstarted, ImageFailed:
		r.ImageState = ImagePending
		r.ImageError = ""
		return nil
	}
	return transitionErr(r.Area, "begin image", r.ImageState)
}

// CompleteImage stores the image data URI and marks it ready.
func (r *RoomDesign) CompleteImage(dataURI string) error {
	if r.ImageState != ImagePending {
		return transitionErr(r.Area, "complete image", r.ImageState)
	}
	r.Image = dataURI
	r.ImageState = ImageReady
	return nil
}

// FailImage marks the image failed. Description and cost estimate are kept.
func (r *RoomDesign) FailImage(cause error) {
	r.ImageState = ImageFailed
	r.Image = ""
	if cause != nil {
		r.ImageError = cause.Error()
	}
}

// ReplaceImage swaps a ready image for a new one, leaving the video untouched.
func (r *RoomDesign) ReplaceImage(dataURI string) error {
	if r.ImageState != ImageReady {
		return transitionErr(r.Area, "replace image", r.ImageState)
	}
	r.Image = dataURI
	return nil
}

// CanBeginVideo reports why a video may not be started, or nil.
func (r *RoomDesign) CanBeginVideo() error {
	if r.ImageState != ImageReady {
		return fmt.Errorf("%w: %s has no ready image (image is %s)", ErrInvalidTransition, r.Area, r.ImageState)
	}
	if r.VideoState == VideoPending {
		return fmt.Errorf("%w: %s already has a video in progress", ErrInvalidTransition, r.Area)
	}
	return nil
}

// BeginVideo moves the video to pending. The image must be ready and no other
// video may be in progress for this room.
func (r *RoomDesign) BeginVideo() error {
	if err := r.CanBeginVideo(); err != nil {
		return err
	}
	r.VideoState = VideoPending
	r.VideoError = ""
	return nil
}

// CompleteVideo stores the video URL and marks it ready.
func (r *RoomDesign) CompleteVideo(url string) error {
	if r.VideoState != VideoPending {
		return transitionErr(r.Area, "complete video", r.VideoState)
	}
	r.Video = url
	r.VideoState = VideoReady
	return nil
}

// FailVideo marks a pending video failed.
func (r *RoomDesign) FailVideo(cause error) error {
	if r.VideoState != VideoPending {
		return transitionErr(r.Area, "fail video", r.VideoState)
	}
	r.VideoState = VideoFailed
	if cause != nil {
		r.VideoError = cause.Error()
	}
	return nil
}
