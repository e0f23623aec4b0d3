package models

import (
	"context"
	"errors"
)

// ErrStrategyPaused is returned by strategies that reject Run while paused.
var ErrStrategyPaused = errors.New("strategy is paused")

// Strategy is the pluggable workflow capability. Concrete strategies are
// produced by an external factory; the core never inspects their logic.
//
// Run is the only method the container invokes directly. Pause/Resume exist by
// convention: a paused strategy is free to reject Run, but the container does
// not track pause state itself.
type Strategy interface {
	ID() WorkflowID
	Name() string
	Category() string
	Run(ctx context.Context) error
	Pause() error
	Resume() error
	Config() map[string]any
}

// NoopStrategy is a trivial strategy used by the seed tool and tests. Run is a
// no-op while active and fails while paused.
type NoopStrategy struct {
	id       WorkflowID
	name     string
	category string
	config   map[string]any
	paused   bool
}

// NewNoopStrategy builds a NoopStrategy with the identity triple fixed at
// construction.
func NewNoopStrategy(id WorkflowID, name, category string, config map[string]any) *NoopStrategy {
	return &NoopStrategy{id: id, name: name, category: category, config: config}
}

func (s *NoopStrategy) ID() WorkflowID         { return s.id }
func (s *NoopStrategy) Name() string           { return s.name }
func (s *NoopStrategy) Category() string       { return s.category }
func (s *NoopStrategy) Config() map[string]any { return s.config }

func (s *NoopStrategy) Run(ctx context.Context) error {
	if s.paused {
		return ErrStrategyPaused
	}
	return nil
}

func (s *NoopStrategy) Pause() error {
	s.paused = true
	return nil
}

func (s *NoopStrategy) Resume() error {
	s.paused = false
	return nil
}
