package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Activity struct {
	ID        string
	CreatedAt time.Time
	Kind      string
	ProjectID string
	Message   string
}

// Video operation statuses.
const (
	OperationStarting = "starting"
	OperationRunning  = "running"
	OperationReady    = "ready"
	OperationFailed   = "failed"
)

type VideoOperation struct {
	ID            string
	ProjectID     string
	RoomIndex     int
	OperationName string
	Status        string
	Polls         int
	VideoURL      string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
