package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialRejected means the remote service refused the caller's key.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrOperationNotFound means a polled video operation no longer exists.
	ErrOperationNotFound = errors.New("operation not found")
	// ErrOperationTimeout means a video operation exceeded the polling deadline.
	ErrOperationTimeout = errors.New("operation timed out")
	// ErrNoArtifact means the service answered but returned nothing usable.
	ErrNoArtifact = errors.New("no artifact returned")
)

// Kind classifies where a failure happened.
type Kind int

const (
	KindStageOne Kind = iota + 1
	KindAreaImage
	KindVideo
	KindRecolor
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindStageOne:
		return "stage_one"
	case KindAreaImage:
		return "area_image"
	case KindVideo:
		return "video"
	case KindRecolor:
		return "recolor"
	case KindValidation:
		return "validation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Failure is a typed pipeline failure. Area is empty for failures that are
// not tied to a single room.
type Failure struct {
	Kind Kind
	Area string
	Err  error
}

// Fail wraps err as a failure of the given kind.
func Fail(kind Kind, area string, err error) *Failure {
	return &Failure{Kind: kind, Area: area, Err: err}
}

// Invalid builds a validation failure from a message.
func Invalid(format string, args ...any) *Failure {
	return &Failure{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Area != "" {
		return fmt.Sprintf("%s failure for %s: %v", f.Kind, f.Area, f.Err)
	}
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the kind of the first Failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsCredentialRejected reports whether err carries a credential rejection.
func IsCredentialRejected(err error) bool {
	return errors.Is(err, ErrCredentialRejected)
}
