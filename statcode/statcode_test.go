package statcode

import (
	"errors"
	"testing"
)

func TestCodeString(t *testing.T) {
	if OK.String() != "OK" {
		t.Errorf("expected OK, got %s", OK.String())
	}
	if ZeroLengthMove.String() != "ZERO_LENGTH_MOVE" {
		t.Errorf("expected ZERO_LENGTH_MOVE, got %s", ZeroLengthMove.String())
	}
	if Code(9999).String() != "UNKNOWN_STAT_CODE" {
		t.Errorf("expected UNKNOWN_STAT_CODE for unregistered code")
	}
}

func TestIsFlowControl(t *testing.T) {
	for _, c := range []Code{OK, NOOP, EAGAIN, COMPLETE} {
		if !c.IsFlowControl() {
			t.Errorf("%s should be flow control", c)
		}
	}
	if ZeroLengthMove.IsFlowControl() {
		t.Error("ZeroLengthMove should not be flow control")
	}
}

func TestWrapAndIs(t *testing.T) {
	err := Wrap(ZeroLengthMove, "line length is zero")

	if !errors.Is(err, ZeroLengthMove) {
		t.Error("errors.Is should match the wrapped code")
	}
	if errors.Is(err, BufferFullFatal) {
		t.Error("errors.Is should not match an unrelated code")
	}
}

func TestWithContext(t *testing.T) {
	cause := errors.New("queue insert failed")
	err := WithContext(BufferFullFatal, cause, "commit rejected")

	if !errors.Is(err, BufferFullFatal) {
		t.Error("expected wrapped code to match")
	}
	if errors.Unwrap(err) == nil {
		t.Error("expected wrapped error to be unwrappable")
	}
}
