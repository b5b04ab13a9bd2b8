// Package agentrunner owns the lifecycle of one agent child process per
// running phase. The exec-backed implementation drives the process over
// the Agent Control Protocol (coder/acp-go-sdk), grounded on the
// teacher's internal/agentctl/server/adapter/transport/acp adapter; this
// file defines the runner-agnostic event vocabulary both that adapter and
// the in-memory MockRunner speak to the rest of the orchestrator.
package agentrunner

import "encoding/json"

// EventKind is the structured event vocabulary the orchestrator consumes.
type EventKind string

const (
	EventSystemInit   EventKind = "system-init"
	EventThought      EventKind = "thought"
	EventAction       EventKind = "action"
	EventActionResult EventKind = "action-result"
	EventResponse     EventKind = "response"
	EventError        EventKind = "error"
	EventEnd          EventKind = "end"
)

// Event is one line of the adapter's structured output stream. Exactly
// one of the payload fields is populated, matching Kind.
type Event struct {
	Kind EventKind `json:"kind"`

	SystemInit   *SystemInitPayload   `json:"systemInit,omitempty"`
	Thought      *ThoughtPayload      `json:"thought,omitempty"`
	Action       *ActionPayload       `json:"action,omitempty"`
	ActionResult *ActionResultPayload `json:"actionResult,omitempty"`
	Response     *ResponsePayload     `json:"response,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
	End          *EndPayload          `json:"end,omitempty"`
}

type SystemInitPayload struct {
	AgentToken string `json:"agentToken"`
	Model      string `json:"model"`
}

type ThoughtPayload struct {
	Text string `json:"text"`
}

type ActionPayload struct {
	ToolName string          `json:"toolName"`
	Inputs   json.RawMessage `json:"inputs"`
}

type ActionResultPayload struct {
	ToolName string          `json:"toolName"`
	Outputs  json.RawMessage `json:"outputs"`
}

type ResponsePayload struct {
	Text string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type EndPayload struct {
	ExitCode int `json:"exitCode"`
}

// StartRequest bundles the arguments to Start and Resume. ResumeToken is
// set only for Resume calls; SystemPrompt must be passed identically for
// both, since resuming with a different system prompt silently desyncs
// the agent's behaviour from what the operator configured.
type StartRequest struct {
	WorkspacePath     string
	Prompt            string
	AllowedTools      []string
	DisallowedTools   []string
	SystemPrompt      string
	ResumeToken       string
	ExtraReadableDirs []string
}
