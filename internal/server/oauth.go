package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// oauthOutcome is what GET /callback delivers to a pending flow.
type oauthOutcome struct {
	Token         string
	WorkspaceID   string
	WorkspaceName string
}

// oauthFlowTimeout bounds how long a registered flow waits for its
// callback before the promise is abandoned.
const oauthFlowTimeout = 5 * time.Minute

// pendingOAuth tracks in-flight OAuth browser flows by a generated
// flow-id, resolving each one's result channel exactly once when its
// callback arrives.
type pendingOAuth struct {
	mu      sync.Mutex
	pending map[string]chan oauthOutcome
}

func newPendingOAuth() *pendingOAuth {
	return &pendingOAuth{pending: make(map[string]chan oauthOutcome)}
}

// Register allocates a new flow-id and returns it along with a function
// that blocks (up to oauthFlowTimeout) for the callback's outcome.
func (p *pendingOAuth) Register() (flowID string, await func() (oauthOutcome, error)) {
	flowID = uuid.NewString()
	ch := make(chan oauthOutcome, 1)

	p.mu.Lock()
	p.pending[flowID] = ch
	p.mu.Unlock()

	await = func() (oauthOutcome, error) {
		defer p.forget(flowID)
		select {
		case outcome := <-ch:
			return outcome, nil
		case <-time.After(oauthFlowTimeout):
			return oauthOutcome{}, fmt.Errorf("oauth: flow %s timed out after %s", flowID, oauthFlowTimeout)
		}
	}
	return flowID, await
}

func (p *pendingOAuth) forget(flowID string) {
	p.mu.Lock()
	delete(p.pending, flowID)
	p.mu.Unlock()
}

// Resolve delivers outcome to the flow registered under flowID. Reports
// false if no such flow is pending (already resolved, timed out, or
// never registered).
func (p *pendingOAuth) Resolve(flowID string, outcome oauthOutcome) bool {
	p.mu.Lock()
	ch, ok := p.pending[flowID]
	if ok {
		delete(p.pending, flowID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	return true
}

// ResolveAny delivers outcome to an arbitrary pending flow, used when the
// callback's query string carries no flow-id (the wire shape in §6 only
// promises token/workspaceId/workspaceName). In practice at most one
// browser-driven OAuth flow is ever in flight at a time — the CLI wizard
// and refresh-token are both interactive and sequential — so "arbitrary"
// resolves to "the only one". Reports false if none is pending.
func (p *pendingOAuth) ResolveAny(outcome oauthOutcome) bool {
	p.mu.Lock()
	var flowID string
	for id := range p.pending {
		flowID = id
		break
	}
	p.mu.Unlock()
	if flowID == "" {
		return false
	}
	return p.Resolve(flowID, outcome)
}
