package runner

import (
	"context"
	"fmt"
	"time"
)

// Runner starts a fixed set of Services in order, waits for shutdown, and
// stops them in reverse order.
type Runner struct {
	services        []Service
	logger          Logger
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithStartupTimeout(d time.Duration) Option {
	return func(r *Runner) { r.startupTimeout = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runner) { r.shutdownTimeout = d }
}

// New constructs a Runner over services, applying opts.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          NewNoopLogger(),
		startupTimeout:  time.Minute,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts every service in registration order, blocks until ctx is
// cancelled or an OS shutdown signal arrives, then stops every started
// service in reverse order.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal()
		r.logger.Info("shutdown signal received")
		cancel()
	}()

	started := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		r.logger.Info("starting service", "service", svc.Name())

		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := svc.Start(startCtx)
		startCancel()
		if err != nil {
			r.logger.Error("failed to start service", "service", svc.Name(), "error", err)
			r.stopAll(started)
			return fmt.Errorf("start service %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
	}
	r.logger.Info("all services started", "count", len(started))

	<-ctx.Done()

	r.logger.Info("stopping services", "timeout", r.shutdownTimeout)
	r.stopAll(started)
	return nil
}

func (r *Runner) stopAll(started []Service) {
	stopCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	for i := len(started) - 1; i >= 0; i-- {
		svc := started[i]
		if err := svc.Stop(stopCtx); err != nil {
			r.logger.Error("failed to stop service", "service", svc.Name(), "error", err)
			continue
		}
		r.logger.Info("service stopped", "service", svc.Name())
	}
}
