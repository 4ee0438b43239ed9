// Package dispatcher runs the pipeline's consumers side by side.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// Runner is a long-lived consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Dispatcher fans consumers out onto goroutines.
type Dispatcher struct {
	names   []string
	runners []Runner
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Add registers a named runner.
func (d *Dispatcher) Add(name string, r Runner) *Dispatcher {
	d.names = append(d.names, name)
	d.runners = append(d.runners, r)
	return d
}

// Len reports how many runners are registered.
func (d *Dispatcher) Len() int {
	return len(d.runners)
}

// Run starts every runner and blocks until all of them return.
// Errors from individual runners are joined.
func (d *Dispatcher) Run(ctx context.Context) error {
	p := pool.New().WithErrors()
	for i, r := range d.runners {
		name := d.names[i]
		p.Go(func() error {
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return p.Wait()
}
