package detector

import (
	"context"
	"sync/atomic"

	"slouchless/internal/camera"
	"slouchless/internal/telemetry"
)

// Exclusive serialises calls to a Detector so that at most one inference is
// in flight process-wide. The monitor loop and the popup feedback loop share
// one Exclusive.
type Exclusive struct {
	d        Detector
	slot     chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
}

// NewExclusive wraps d.
func NewExclusive(d Detector) *Exclusive {
	return &Exclusive{d: d, slot: make(chan struct{}, 1)}
}

func (e *Exclusive) Name() string {
	return e.d.Name()
}

// Classify waits for the slot, honouring ctx, then delegates.
func (e *Exclusive) Classify(ctx context.Context, frame camera.Frame, req Request) (Result, error) {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-e.slot }()

	n := e.inFlight.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	telemetry.SetInferenceInFlight(int(n))
	defer func() {
		telemetry.SetInferenceInFlight(int(e.inFlight.Add(-1)))
	}()

	return e.d.Classify(ctx, frame, req)
}

// InFlight returns the number of calls currently inside the wrapped detector.
func (e *Exclusive) InFlight() int {
	return int(e.inFlight.Load())
}

// Peak returns the highest concurrent in-flight count observed.
func (e *Exclusive) Peak() int {
	return int(e.peak.Load())
}
