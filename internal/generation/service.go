// Package generation defines the contract with the remote generative service
// and the failure taxonomy shared by every stage of the pipeline.
package generation

import (
	"context"
	"io"

	"github.com/kalambet/dreamhouse/internal/design"
	"github.com/kalambet/dreamhouse/internal/media"
)

// AreaDescription is one entry of a stage-one response.
type AreaDescription struct {
	Area         string `json:"area"`
	Description  string `json:"description"`
	CostEstimate string `json:"budgetEstimate,omitempty"`
}

// Descriptions is the structured result of stage one.
type Descriptions struct {
	Areas         []AreaDescription `json:"areas"`
	TrendAnalysis string            `json:"trendAnalysis,omitempty"`
	Budget        *design.Budget    `json:"budget,omitempty"`
}

// Operation is an opaque handle to a long-running remote video job.
type Operation struct {
	Name string `json:"name"`
}

// OperationStatus is the result of one poll. When Done is true exactly one of
// VideoRef and Err is set.
type OperationStatus struct {
	Done     bool
	VideoRef string
	Err      error
}

// Service is the remote generative service. Implementations must be safe for
// concurrent use.
type Service interface {
	SynthesizeDescriptions(ctx context.Context, prefs design.Preferences) (Descriptions, error)
	SynthesizeImage(ctx context.Context, description string, prefs design.Preferences) (media.Image, error)
	StartVideo(ctx context.Context, description string, prefs design.Preferences, source media.Image) (Operation, error)
	PollVideo(ctx context.Context, op Operation) (OperationStatus, error)
	FetchVideo(ctx context.Context, ref string) (io.ReadCloser, error)
	RecolorImage(ctx context.Context, source media.Image, directive string) (media.Image, error)
}
