// Package session defines the agent session record and the in-memory
// session store that indexes it by the tracker ids the rest of the system
// needs to look sessions up by.
package session

import (
	"time"

	"github.com/go-cyrus/orchestrator/internal/procedure"
)

type ThreadType string

const (
	ThreadIssueRoot     ThreadType = "issue-root"
	ThreadCommentThread ThreadType = "comment-thread"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusAwaitingInput Status = "awaiting-input"
	StatusComplete      Status = "complete"
	StatusErrored       Status = "errored"
)

type EntryKind string

const (
	EntryThought  EntryKind = "thought"
	EntryAction   EntryKind = "action"
	EntryResponse EntryKind = "response"
	EntryResult   EntryKind = "result"
)

// Entry is one append-only log line on a session.
type Entry struct {
	Kind      EntryKind   `json:"kind"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IssueRef identifies the tracker issue a session is bound to.
type IssueRef struct {
	ID         string `json:"id"`         // stable tracker issue id
	Identifier string `json:"identifier"` // human identifier, e.g. "CEE-42"
	Title      string `json:"title"`
	ParentID   string `json:"parentId,omitempty"`
}

// Workspace is what the Workspace Provisioner hands to the orchestrator.
type Workspace struct {
	Path       string `json:"path"`
	IsWorktree bool   `json:"isWorktree"`
}

// Session represents one tracker-side conversation thread.
type Session struct {
	ID                       string `json:"sessionId"`
	ThreadType               ThreadType
	Status                   Status
	IssueRef                 IssueRef
	RepositoryID             string
	Workspace                Workspace
	CurrentAgentPID          int    // 0 means none live
	CurrentAgentSessionToken string // opaque, used to resume
	ParentSessionID          string // "" if root
	ProcedureState           procedure.State
	CreatedAt                time.Time
	UpdatedAt                time.Time
	Entries                  []Entry
}

// HasLiveAgent reports whether an agent is currently believed running for
// this session. At most one agent is live at a time; callers enforce that
// by only ever mutating this field from the session's own actor.
func (s *Session) HasLiveAgent() bool {
	return s.CurrentAgentPID != 0
}

// AppendEntry appends a log entry and bumps UpdatedAt so the snapshot
// writer picks up every observable mutation.
func (s *Session) AppendEntry(kind EntryKind, payload interface{}) {
	s.Entries = append(s.Entries, Entry{Kind: kind, Payload: payload, Timestamp: time.Now()})
	s.UpdatedAt = time.Now()
}
