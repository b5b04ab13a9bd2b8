package agentrunner

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Script is a scripted sequence of events a MockRunner emits for one
// Start/Resume call, used by orchestrator tests to drive deterministic
// phase-end/error scenarios without a real agent subprocess.
type Script []Event

// MockRunner emits a pre-scripted event sequence instead of spawning a
// real process, for use in orchestrator tests.
type MockRunner struct {
	mu      sync.Mutex
	scripts []Script // consumed in call order; last one repeats once exhausted
	calls   int
	running map[string]bool
	stopped []string
}

// NewMockRunner constructs a MockRunner that will hand out scripts in the
// given order on successive Start/Resume calls.
func NewMockRunner(scripts ...Script) *MockRunner {
	return &MockRunner{scripts: scripts, running: make(map[string]bool)}
}

func (m *MockRunner) nextScript() Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if idx >= len(m.scripts) {
		if len(m.scripts) == 0 {
			return Script{{Kind: EventSystemInit, SystemInit: &SystemInitPayload{AgentToken: uuid.NewString()}}, {Kind: EventEnd, End: &EndPayload{}}}
		}
		idx = len(m.scripts) - 1
	}
	return m.scripts[idx]
}

func (m *MockRunner) emit(script Script) (string, <-chan Event) {
	token := uuid.NewString()
	for _, ev := range script {
		if ev.Kind == EventSystemInit && ev.SystemInit != nil && ev.SystemInit.AgentToken != "" {
			token = ev.SystemInit.AgentToken
		}
	}

	m.mu.Lock()
	m.running[token] = true
	m.mu.Unlock()

	events := make(chan Event, len(script))
	for _, ev := range script {
		events <- ev
	}
	close(events)

	m.mu.Lock()
	m.running[token] = false
	m.mu.Unlock()

	return token, events
}

func (m *MockRunner) Start(ctx context.Context, req StartRequest) (string, <-chan Event, error) {
	token, events := m.emit(m.nextScript())
	return token, events, nil
}

func (m *MockRunner) Resume(ctx context.Context, req StartRequest) (string, <-chan Event, error) {
	token, events := m.emit(m.nextScript())
	return token, events, nil
}

func (m *MockRunner) Stop(ctx context.Context, agentToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[agentToken] = false
	m.stopped = append(m.stopped, agentToken)
	return nil
}

func (m *MockRunner) IsRunning(agentToken string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[agentToken]
}

// Stopped returns the tokens Stop was called with, in call order — useful
// for asserting an orchestrator test actually stopped the agent it meant to.
func (m *MockRunner) Stopped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.stopped))
	copy(out, m.stopped)
	return out
}
