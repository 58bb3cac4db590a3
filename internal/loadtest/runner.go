package loadtest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("load test already running")
	ErrNotRunning     = errors.New("load test not running")
)

// Runner manages at most one background Driver at a time.
type Runner struct {
	base   context.Context
	cfg    Config
	h      Handler
	logger *zap.Logger

	mu     sync.Mutex
	driver *Driver
	cancel context.CancelFunc
	done   chan struct{}
	last   *Report
}

// NewRunner creates a runner whose tasks live until base is cancelled or
// Stop is called.
func NewRunner(base context.Context, cfg Config, h Handler, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{base: base, cfg: cfg, h: h, logger: logger}
}

// Start launches a run. iterations <= 0 uses the configured count.
func (r *Runner) Start(iterations int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driver != nil {
		return ErrAlreadyRunning
	}

	cfg := r.cfg
	if iterations > 0 {
		cfg.Iterations = iterations
	}
	d := NewDriver(cfg, r.h, r.logger)
	ctx, cancel := context.WithCancel(r.base)
	done := make(chan struct{})

	r.driver, r.cancel, r.done = d, cancel, done

	go func() {
		defer close(done)
		rep := d.Run(ctx)
		cancel()

		r.mu.Lock()
		r.last = &rep
		r.driver, r.cancel = nil, nil
		r.mu.Unlock()
	}()
	return nil
}

// Stop asks the running task to finish after its current query.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.driver == nil {
		return ErrNotRunning
	}
	r.cancel()
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status is a snapshot of the runner.
type Status struct {
	Running    bool    `json:"running"`
	Completed  int     `json:"completed"`
	Iterations int     `json:"iterations"`
	Last       *Report `json:"last,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Last: r.last}
	if r.driver != nil {
		st.Running = true
		st.Completed = r.driver.Completed()
		st.Iterations = r.driver.cfg.Iterations
	}
	return st
}
