package engine

import "context"

// SweeperFuncs adapts plain functions to the retention sweeper.
type SweeperFuncs struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context)
}

func (f SweeperFuncs) Start(ctx context.Context) error { return f.StartFn(ctx) }

func (f SweeperFuncs) Stop(ctx context.Context) {
	if f.StopFn != nil {
		f.StopFn(ctx)
	}
}

// SetSweeper replaces the retention sweeper of an engine that is not
// started yet.
func SetSweeper(eng *Engine, s SweeperFuncs) { eng.retention = s }
