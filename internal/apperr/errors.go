// Package apperr defines the error kinds surfaced by the prediction and
// optimization services. Every kind has a stable string so HTTP and MQTT
// consumers can branch on it without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindModelNotReady   Kind = "model_not_ready"
	KindInference       Kind = "inference_error"
	KindCacheCorruption Kind = "cache_corruption"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// Sentinels for errors.Is. Matching is by kind, so any *Error with the same
// kind satisfies errors.Is(err, ErrInvalidInput) and so on.
var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrModelNotReady   = &Error{Kind: KindModelNotReady}
	ErrInference       = &Error{Kind: KindInference}
	ErrCacheCorruption = &Error{Kind: KindCacheCorruption}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "predict_efficiency"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidInput creates an invalid_input error with a formatted message.
func InvalidInput(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// ModelNotReady reports that no estimator is loaded for target.
func ModelNotReady(target string) *Error {
	return &Error{
		Kind:    KindModelNotReady,
		Op:      "predict_" + target,
		Message: fmt.Sprintf("%s model not loaded", target),
	}
}

// Inference wraps an estimator failure.
func Inference(op string, err error) error {
	return Wrap(KindInference, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}
