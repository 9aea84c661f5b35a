package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsAreDistinguishable(t *testing.T) {
	notReady := ModelNotReady("efficiency")
	badInput := InvalidInput("optimize_unit", "unknown strategy: %s", "fastest")
	inference := Inference("predict_efficiency", errors.New("feature vector has 3 values, want 14"))

	assert.ErrorIs(t, notReady, ErrModelNotReady)
	assert.NotErrorIs(t, notReady, ErrInvalidInput)
	assert.ErrorIs(t, badInput, ErrInvalidInput)
	assert.NotErrorIs(t, badInput, ErrInference)
	assert.ErrorIs(t, inference, ErrInference)
	assert.NotErrorIs(t, inference, ErrModelNotReady)
}

func TestKindOfWrappedChain(t *testing.T) {
	err := fmt.Errorf("unit u-1: %w", ModelNotReady("maintenance"))

	assert.Equal(t, KindModelNotReady, KindOf(err))
	assert.ErrorIs(t, err, ErrModelNotReady)
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindInference, "op", nil))
}

func TestErrorString(t *testing.T) {
	err := Inference("predict_energy", errors.New("nan feature"))
	assert.Equal(t, "predict_energy: inference_error: nan feature", err.Error())

	msg := InvalidInput("optimize_unit", "valid unit_id is required")
	assert.Equal(t, "optimize_unit: valid unit_id is required", msg.Error())
	assert.Equal(t, "valid unit_id is required", Message(msg))
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("dimension mismatch")
	err := Inference("predict_efficiency", cause)
	assert.ErrorIs(t, err, cause)
}
