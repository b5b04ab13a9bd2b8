package agentrunner

import "context"

// Runner owns the lifecycle of agent child processes. One Runner instance
// multiplexes many concurrently running agent tokens.
type Runner interface {
	// Start spawns a new agent and returns its token and event stream.
	// The stream's first event is always system-init; the stream closes
	// exactly once, with an end event, after which it is closed entirely.
	Start(ctx context.Context, req StartRequest) (agentToken string, events <-chan Event, err error)

	// Resume reattaches to a prior conversation via req.ResumeToken.
	Resume(ctx context.Context, req StartRequest) (agentToken string, events <-chan Event, err error)

	// Stop requests graceful termination of the given agent, escalating
	// to a hard kill if it hasn't exited within the grace period.
	Stop(ctx context.Context, agentToken string) error

	// IsRunning reports whether agentToken currently has a live process.
	IsRunning(agentToken string) bool
}
