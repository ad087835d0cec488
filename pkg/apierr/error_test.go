package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_MessageAndCode(t *testing.T) {
	e := OperatorNotFound("@x/y/z")
	if e.Code() != CodeOperatorNotFound {
		t.Errorf("expected code %s, got %s", CodeOperatorNotFound, e.Code())
	}
	if e.Status() != http.StatusNotFound {
		t.Errorf("expected 404, got %d", e.Status())
	}
	if e.Message() != "Operator '@x/y/z' not found" {
		t.Errorf("unexpected message %q", e.Message())
	}
}

func TestError_WithFieldDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeValidationFailed, http.StatusBadRequest, "bad")
	withIdx := base.WithField("stage_index", 2)

	if _, ok := base.Field("stage_index"); ok {
		t.Error("original error should not carry the new field")
	}
	v, ok := withIdx.Field("stage_index")
	if !ok || v != 2 {
		t.Errorf("expected stage_index=2, got %v (%v)", v, ok)
	}
}

func TestError_UnwrapChain(t *testing.T) {
	cause := errors.New("boom")
	e := ExecutionFailed(fmt.Errorf("run: %w", cause), "")
	if !errors.Is(e, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if e.Message() != "run: boom" {
		t.Errorf("execution failure should surface the cause text, got %q", e.Message())
	}
	if _, ok := e.Field("traceback"); ok {
		t.Error("empty trace should not produce a traceback field")
	}
}

func TestMissingDependency_Fields(t *testing.T) {
	e := MissingDependency("@voxel51/brain/compute_similarity", "torch", "pip install torch", nil)
	if e.Code() != CodeMissingDependency {
		t.Fatalf("expected %s, got %s", CodeMissingDependency, e.Code())
	}
	if pkg, _ := e.Field("missing_package"); pkg != "torch" {
		t.Errorf("expected missing_package=torch, got %v", pkg)
	}
	if cmd, _ := e.Field("install_command"); cmd != "pip install torch" {
		t.Errorf("unexpected install_command %v", cmd)
	}
}

func TestAs_WrapsPlainErrors(t *testing.T) {
	if As(nil) != nil {
		t.Error("As(nil) should be nil")
	}
	e := As(errors.New("plain"))
	if e.Code() != CodeInternalError {
		t.Errorf("plain error should become INTERNAL_ERROR, got %s", e.Code())
	}

	wrapped := fmt.Errorf("outer: %w", ContextNotSet())
	if As(wrapped).Code() != CodeContextNotSet {
		t.Error("As should find a wrapped *Error")
	}
	if !Is(wrapped, CodeContextNotSet) {
		t.Error("Is should match a wrapped code")
	}
}
