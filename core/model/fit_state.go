// Package model provides the shared estimator contracts, fitted-state
// bookkeeping and gob persistence used by every model in the module.
package model

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// FitState records whether an estimator has been fitted and the shape it was
// fitted on. Estimators hold a *FitState by composition; the exported fields
// travel with the estimator through gob.
type FitState struct {
	mu sync.RWMutex

	Fitted    bool
	NFeatures int
	NSamples  int
}

func NewFitState() *FitState { return &FitState{} }

// IsFitted は nil レシーバでも false を返す。
func (s *FitState) IsFitted() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	fitted := s.Fitted
	s.mu.RUnlock()
	return fitted
}

func (s *FitState) SetFitted() {
	s.mu.Lock()
	s.Fitted = true
	s.mu.Unlock()
}

// SetDimensions stores the training shape. Check compares later inputs
// against nFeatures.
func (s *FitState) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	s.NFeatures, s.NSamples = nFeatures, nSamples
	s.mu.Unlock()
}

// RequireFitted returns a NotFittedError for modelName.method until SetFitted
// has been called.
func (s *FitState) RequireFitted(modelName, method string) error {
	if s.IsFitted() {
		return nil
	}
	return crerrors.NewNotFittedError(modelName, method)
}

// Check combines RequireFitted with a column-count check on X.
func (s *FitState) Check(modelName, method string, X mat.Matrix) error {
	if err := s.RequireFitted(modelName, method); err != nil {
		return err
	}
	s.mu.RLock()
	want := s.NFeatures
	s.mu.RUnlock()
	if _, got := X.Dims(); got != want {
		return crerrors.NewDimensionError(modelName+"."+method, want, got, 1)
	}
	return nil
}
