package pipeline

import (
	"sync/atomic"

	"github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// Slot publishes the artifact currently used for serving. Readers always
// see either the previous or the new artifact, never a partial one.
type Slot struct {
	current atomic.Pointer[Artifact]
}

// NewSlot returns a slot holding a, which may be nil.
func NewSlot(a *Artifact) *Slot {
	s := &Slot{}
	if a != nil {
		s.current.Store(a)
	}
	return s
}

// Load returns the published artifact or a NotFittedError when none is.
func (s *Slot) Load() (*Artifact, error) {
	a := s.current.Load()
	if a == nil {
		return nil, errors.NewNotFittedError("Pipeline", "Predict")
	}
	return a, nil
}

// Publish replaces the artifact and returns the previous one.
func (s *Slot) Publish(a *Artifact) *Artifact {
	return s.current.Swap(a)
}
