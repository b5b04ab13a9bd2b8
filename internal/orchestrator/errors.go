package orchestrator

import "fmt"

// ConfigError wraps malformed-configuration failures. Fatal at startup;
// never expected during normal operation.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s: %v", e.Detail, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError wraps a network/HTTP failure talking to the tracker.
// Retried with exponential backoff, bounded total attempts.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError records that the tracker rejected a token. Nothing in this
// package constructs it: postActivity retries and logs a rejected token
// like any other failure, and no connector is paused.
type AuthError struct {
	Token string
	Err   error
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth error for token: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// IntegrityError records snapshot or config corruption. Nothing in this
// package constructs it; snapshot.Load quarantines a corrupt snapshot
// file itself.
type IntegrityError struct {
	Path string
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error at %s: %v", e.Path, e.Err)
}
func (e *IntegrityError) Unwrap() error { return e.Err }

// AgentError records the agent child exiting non-zero or emitting an
// error event. Nothing in this package constructs it: a non-zero exit is
// recorded as a result entry naming the phase, and an error event as a
// result entry holding its message.
type AgentError struct {
	Phase string
	Err   error
}

func (e *AgentError) Error() string { return fmt.Sprintf("agent error in phase %q: %v", e.Phase, e.Err) }
func (e *AgentError) Unwrap() error { return e.Err }

// WorkspaceError records an irrecoverable VCS operation failure. Nothing
// in this package constructs it: when provisioning fails,
// HandleSessionCreated returns the error and no session is created.
type WorkspaceError struct {
	RepositoryID string
	Err          error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace error for repository %q: %v", e.RepositoryID, e.Err)
}
func (e *WorkspaceError) Unwrap() error { return e.Err }

// SignatureError records a webhook HMAC mismatch. The webhook handler
// logs the mismatch and answers 401 itself; nothing constructs this type.
type SignatureError struct{}

func (e *SignatureError) Error() string { return "webhook signature mismatch" }
