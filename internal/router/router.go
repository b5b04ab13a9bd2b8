// Package router implements a pure function from a parsed event and the
// active repository list to a routing decision.
package router

import (
	"regexp"
	"strings"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

// Result is the router's decision: a matched repository + intent, or NoMatch.
type Result struct {
	RepositoryID string
	Intent       webhook.Intent
	Matched      bool
}

// NoMatch is the zero Result; Matched is false.
var NoMatch = Result{}

var issueKeyPattern = regexp.MustCompile(`^([A-Z]+)-\d+$`)

// Input bundles everything Route needs, keeping Route itself a pure
// function of its arguments. Project resolution (step 1) requires a live
// tracker fetch in the real system; that fetch is the caller's
// responsibility (it is an async, fallible call) — by the time Route is
// invoked, ResolvedProjectName is either the already-resolved name or
// empty (lookup not attempted or failed), and Route never performs I/O
// itself.
type Input struct {
	Payload              webhook.Payload
	ResolvedProjectName  string // "" if unresolved or lookup failed
}

// Route implements the four-step repository selection algorithm, first
// match wins: project name, then team key, then workspace catch-all, else
// unmatched.
func Route(in Input, repos []config.RepositoryConfig) Result {
	intent := in.Payload.Classify()

	// Step 1: project-name match.
	if in.ResolvedProjectName != "" {
		for _, repo := range repos {
			if !repo.IsActive {
				continue
			}
			if containsFold(repo.ProjectKeys, in.ResolvedProjectName) {
				return Result{RepositoryID: repo.ID, Intent: intent, Matched: true}
			}
		}
	}

	// Step 2: team-key match.
	if key := teamKey(in.Payload); key != "" {
		for _, repo := range repos {
			if !repo.IsActive {
				continue
			}
			if contains(repo.TeamKeys, key) {
				return Result{RepositoryID: repo.ID, Intent: intent, Matched: true}
			}
		}
	}

	// Step 3: workspace (catch-all) match.
	orgID := in.Payload.OrganizationID
	for _, repo := range repos {
		if !repo.IsActive {
			continue
		}
		if repo.TrackerWorkspaceID == orgID && repo.IsCatchAll() {
			return Result{RepositoryID: repo.ID, Intent: intent, Matched: true}
		}
	}

	// Step 4: no match.
	return NoMatch
}

// teamKey extracts the uppercase team code either from the event's
// explicit team.key or by parsing the issue identifier as KEY-N.
func teamKey(p webhook.Payload) string {
	if p.AgentSession != nil && p.AgentSession.Team != nil && p.AgentSession.Team.Key != "" {
		return p.AgentSession.Team.Key
	}
	identifier := ""
	if p.AgentSession != nil {
		identifier = p.AgentSession.Issue.Identifier
	}
	if m := issueKeyPattern.FindStringSubmatch(identifier); m != nil {
		return m[1]
	}
	return ""
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
