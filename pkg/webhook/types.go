// Package webhook defines the inbound tracker webhook wire shape and the
// parsed, router-friendly projection of it.
package webhook

// Payload is the top-level JSON body the tracker posts to POST /webhook.
type Payload struct {
	Type           string          `json:"type"` // "AgentSessionEvent", "AppUserNotification", ...
	Action         string          `json:"action"`
	OrganizationID string          `json:"organizationId"`
	AgentSession   *AgentSession   `json:"agentSession,omitempty"`
	Notification   *Notification   `json:"notification,omitempty"` // legacy-shaped payloads
	AgentActivity  *AgentActivity  `json:"agentActivity,omitempty"`
}

type AgentSession struct {
	ID      string   `json:"id"`
	Issue   Issue    `json:"issue"`
	Team    *Team    `json:"team,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

type Issue struct {
	ID         string   `json:"id"`
	Identifier string   `json:"identifier"` // e.g. "CEE-42"
	Title      string   `json:"title"`
	Labels     []string `json:"labels,omitempty"`
	ParentID   string   `json:"parentId,omitempty"`
	Branch     string   `json:"branchName,omitempty"`
	ProjectName string  `json:"projectName,omitempty"`
	IsClosed   bool     `json:"isClosed,omitempty"`
}

type Team struct {
	Key string `json:"key"`
}

type Comment struct {
	Body string `json:"body"`
	Actor string `json:"actorName,omitempty"`
}

type Notification struct {
	IssueIdentifier string `json:"issueIdentifier,omitempty"`
}

// AgentActivity carries out-of-band signals on an existing session, most
// notably the stop signal, carried as agentActivity.signal == "stop".
type AgentActivity struct {
	Signal    string `json:"signal,omitempty"`
	ActorName string `json:"actorName,omitempty"`
}

// Intent is the event classification the router produces.
type Intent string

const (
	IntentSessionCreated     Intent = "session-created"
	IntentSessionPrompted    Intent = "session-prompted"
	IntentSessionStopSignal  Intent = "session-stop-signal"
	IntentIssueUnassigned    Intent = "issue-unassigned"
	IntentLegacyNotification Intent = "legacy-notification"
)

// Classify derives the event intent from the raw payload's type/action/
// agentActivity shape.
func (p Payload) Classify() Intent {
	if p.AgentActivity != nil && p.AgentActivity.Signal == "stop" {
		return IntentSessionStopSignal
	}
	switch {
	case p.Type == "AgentSessionEvent" && p.Action == "created":
		return IntentSessionCreated
	case p.Type == "AgentSessionEvent" && p.Action == "prompted":
		return IntentSessionPrompted
	case p.Type == "AgentSessionEvent" && p.Action == "unassigned":
		return IntentIssueUnassigned
	case p.Type == "AppUserNotification":
		return IntentLegacyNotification
	default:
		return IntentLegacyNotification
	}
}
