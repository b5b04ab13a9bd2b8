// Package procedure implements a pure state machine sequencing a session's
// named sub-phases and applying each phase's tool-allow-list override and
// output-suppression rule.
package procedure

import (
	"fmt"
	"time"
)

// Phase is one named sub-phase of a procedure.
type Phase struct {
	Name                        string
	ToolAllowListOverride       []string // nil means "use the repository default"
	SuppressIntermediateOutput  bool
}

var (
	Primary        = Phase{Name: "primary"}
	Verifications  = Phase{Name: "verifications"}
	Publish        = Phase{Name: "publish"}
	VerboseSummary = Phase{Name: "verbose-summary", SuppressIntermediateOutput: true}
	ConciseSummary = Phase{Name: "concise-summary", SuppressIntermediateOutput: true}
)

// Procedure is a named ordered list of phases.
type Procedure struct {
	Name   string
	Phases []Phase
}

// Registry is the compile-time set of procedures and their phase orderings.
var Registry = map[string]Procedure{
	"full-development":   {Name: "full-development", Phases: []Phase{Primary, Verifications, Publish, VerboseSummary}},
	"documentation-edit": {Name: "documentation-edit", Phases: []Phase{Primary, Publish, ConciseSummary}},
	"simple-question":    {Name: "simple-question", Phases: []Phase{Primary, ConciseSummary}},
}

// DefaultProcedureName is used when label classification finds nothing
// recognised.
const DefaultProcedureName = "full-development"

// HistoryEntry records one completed phase.
type HistoryEntry struct {
	PhaseName   string    `json:"phaseName"`
	CompletedAt time.Time `json:"completedAt"`
	AgentToken  string    `json:"agentToken"`
}

// State is the persisted procedure progress for one session.
//
// A phase is current while CurrentPhaseIndex points at it (0-based); the
// procedure is complete once CurrentPhaseIndex has moved past the last
// valid index. Advance is the only thing that moves the index, and it is
// a runtime precondition violation (panic) to call it again once complete.
type State struct {
	ProcedureName string `json:"procedureName"`
	Variant       string `json:"variant,omitempty"`
	// SystemPromptOverride, when set, replaces the variant's compiled-in
	// template verbatim. Populated from a repository's labelPrompts
	// mapping at classification time, so an operator can override the
	// built-in debugger/builder/scoper/coordinator prompts per label
	// without a code change.
	SystemPromptOverride string         `json:"systemPromptOverride,omitempty"`
	CurrentPhaseIndex    int            `json:"currentPhaseIndex"`
	History              []HistoryEntry `json:"history"`
}

// Initialize sets currentPhaseIndex = 0 and clears history.
func Initialize(procedureName string) State {
	return State{ProcedureName: procedureName, CurrentPhaseIndex: 0, History: nil}
}

// Reinitialize clears any prior state for a new user prompt on a completed
// session.
func Reinitialize(procedureName string) State {
	return Initialize(procedureName)
}

func (s *State) procedure() (Procedure, error) {
	p, ok := Registry[s.ProcedureName]
	if !ok {
		return Procedure{}, fmt.Errorf("procedure: unknown procedure %q", s.ProcedureName)
	}
	return p, nil
}

// CurrentPhase returns the phase descriptor the session is presently in.
func (s *State) CurrentPhase() (Phase, error) {
	p, err := s.procedure()
	if err != nil {
		return Phase{}, err
	}
	if s.CurrentPhaseIndex >= len(p.Phases) {
		return Phase{}, fmt.Errorf("procedure: no current phase, procedure is complete")
	}
	return p.Phases[s.CurrentPhaseIndex], nil
}

// Advance appends a history entry for the just-completed phase and moves to
// the next index. Calling Advance once the procedure is already complete is
// a programmer error and panics rather than silently producing an
// out-of-range index.
func (s *State) Advance(completedAgentToken string) {
	p, err := s.procedure()
	if err != nil {
		panic(err)
	}
	if s.CurrentPhaseIndex >= len(p.Phases) {
		panic("procedure: Advance called after procedure already complete")
	}

	s.History = append(s.History, HistoryEntry{
		PhaseName:   p.Phases[s.CurrentPhaseIndex].Name,
		CompletedAt: time.Now(),
		AgentToken:  completedAgentToken,
	})
	s.CurrentPhaseIndex++
}

// IsComplete reports whether the procedure has been advanced past its last
// phase. Safe to call after a fresh deserialisation from a snapshot, since
// it is derived purely from CurrentPhaseIndex and the compile-time registry.
func (s *State) IsComplete() bool {
	p, err := s.procedure()
	if err != nil {
		return false
	}
	return s.CurrentPhaseIndex >= len(p.Phases)
}
