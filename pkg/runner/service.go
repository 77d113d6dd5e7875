// Package runner supervises the long-running pieces of the core — command
// dispatch intake, projection subscribers, the job executor — as a set of
// named services with ordered startup and reverse-order graceful shutdown.
// Grounded on the teacher's pkg/runner package.
package runner

import "context"

// Service is a component the Runner starts and stops.
type Service interface {
	// Name identifies the service in logs and startup-failure messages.
	Name() string

	// Start brings the service up. Runner.Run calls Start for each service
	// in turn and waits for it to return (bounded by the startup timeout)
	// before starting the next, so a long-running service (an executor
	// polling loop, a bus subscriber) launches its work on its own goroutine
	// and returns once it is ready to accept work.
	Start(ctx context.Context) error

	// Stop shuts the service down within ctx's deadline.
	Stop(ctx context.Context) error
}

// HealthChecker is implemented by services that can report liveness beyond
// "Start returned without error".
type HealthChecker interface {
	Service
	HealthCheck(ctx context.Context) error
}
