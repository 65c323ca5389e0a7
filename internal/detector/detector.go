package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slouchless/internal/camera"
)

// Status is the classified posture verdict.
type Status string

const (
	StatusOK        Status = "ok"
	StatusSlouching Status = "slouching"
	StatusUncertain Status = "uncertain"
)

// Request carries the prompt and sampling parameters of one inference.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Result is an immutable detector verdict.
type Result struct {
	Status      Status
	Raw         string
	Message     string
	Backend     string
	GeneratedAt time.Time
	Latency     time.Duration
}

// Detector classifies a frame. Implementations must be safe for concurrent use.
type Detector interface {
	Classify(ctx context.Context, frame camera.Frame, req Request) (Result, error)
	Name() string
}

// Kind separates retryable failures from ones that need operator action.
type Kind int

const (
	Transient Kind = iota + 1
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is returned by detector backends.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s detector %s error: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transientErr(backend string, err error) *Error {
	return &Error{Kind: Transient, Backend: backend, Err: err}
}

func fatalErr(backend string, err error) *Error {
	return &Error{Kind: Fatal, Backend: backend, Err: err}
}

// IsFatal reports whether err is a fatal detector error.
func IsFatal(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == Fatal
}

// IsTransient reports whether err is a transient detector error.
func IsTransient(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == Transient
}

// KindOf returns the label used for metrics and logs.
func KindOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}
