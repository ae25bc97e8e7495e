package generation

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureUnwrap(t *testing.T) {
	cause := fmt.Errorf("calling api: %w", ErrCredentialRejected)
	err := fmt.Errorf("stage one: %w", Fail(KindStageOne, "", cause))

	if !IsCredentialRejected(err) {
		t.Error("credential rejection lost through Failure")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindStageOne {
		t.Errorf("KindOf = %v, %v; want stage_one", kind, ok)
	}
}

func TestFailureError(t *testing.T) {
	f := Fail(KindAreaImage, "Kitchen", errors.New("quota exceeded"))
	if got, want := f.Error(), "area_image failure for Kitchen: quota exceeded"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	v := Invalid("bad index %d", 9)
	if got, want := v.Error(), "validation failure: bad index 9"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf on plain error should report false")
	}
}
