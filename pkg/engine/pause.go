package engine

import (
	"context"
	"fmt"
)

// Pauser is the part of Engine that WithPause needs.
type Pauser interface {
	PauseAll(ctx context.Context) error
	ResumeAll(ctx context.Context) error
}

// WithPause pauses all workers, runs fn and resumes the workers on every
// exit path, including a panic in fn. If pausing fails fn is not run and
// nothing is resumed. A resume failure is returned only when fn itself
// succeeded.
//
// Resume runs on a context detached from ctx's cancellation, so an
// interrupted command still leaves the pipeline running.
func WithPause(ctx context.Context, p Pauser, fn func(ctx context.Context) error) (err error) {
	if err := p.PauseAll(ctx); err != nil {
		return err
	}
	defer func() {
		rerr := p.ResumeAll(context.WithoutCancel(ctx))
		if rerr != nil && err == nil {
			err = fmt.Errorf("resume: %w", rerr)
		}
	}()
	return fn(ctx)
}
