package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

func repoA() config.RepositoryConfig {
	return config.RepositoryConfig{ID: "repo-a", ProjectKeys: []string{"Mobile App"}, IsActive: true}
}

func repoB() config.RepositoryConfig {
	return config.RepositoryConfig{ID: "repo-b", TeamKeys: []string{"CEE"}, IsActive: true}
}

func TestRouteProjectMatchWinsOverTeamMatch(t *testing.T) {
	repos := []config.RepositoryConfig{repoA(), repoB()}
	payload := webhook.Payload{
		Type:   "AgentSessionEvent",
		Action: "created",
		AgentSession: &webhook.AgentSession{
			Issue: webhook.Issue{Identifier: "CEE-9"},
		},
	}
	result := Route(Input{Payload: payload, ResolvedProjectName: "Mobile App"}, repos)
	assert.True(t, result.Matched)
	assert.Equal(t, "repo-a", result.RepositoryID)
}

func TestRouteFallsBackToTeamKeyWhenProjectUnresolved(t *testing.T) {
	repos := []config.RepositoryConfig{repoA(), repoB()}
	payload := webhook.Payload{
		Type:   "AgentSessionEvent",
		Action: "created",
		AgentSession: &webhook.AgentSession{
			Issue: webhook.Issue{Identifier: "CEE-9"},
		},
	}
	result := Route(Input{Payload: payload}, repos)
	assert.True(t, result.Matched)
	assert.Equal(t, "repo-b", result.RepositoryID)
}

func TestRouteCatchAllMatchesByWorkspace(t *testing.T) {
	catchAll := config.RepositoryConfig{ID: "repo-c", TrackerWorkspaceID: "org-1", IsActive: true}
	repos := []config.RepositoryConfig{repoB(), catchAll}
	payload := webhook.Payload{
		Type:           "AgentSessionEvent",
		Action:         "created",
		OrganizationID: "org-1",
		AgentSession: &webhook.AgentSession{
			Issue: webhook.Issue{Identifier: "XYZ-1"},
		},
	}
	result := Route(Input{Payload: payload}, repos)
	assert.True(t, result.Matched)
	assert.Equal(t, "repo-c", result.RepositoryID)
}

func TestRouteNoMatch(t *testing.T) {
	repos := []config.RepositoryConfig{repoA(), repoB()}
	payload := webhook.Payload{Type: "AgentSessionEvent", Action: "created", OrganizationID: "org-unknown"}
	result := Route(Input{Payload: payload}, repos)
	assert.Equal(t, NoMatch, result)
}

func TestRouteIsPure(t *testing.T) {
	repos := []config.RepositoryConfig{repoA(), repoB()}
	payload := webhook.Payload{
		Type:   "AgentSessionEvent",
		Action: "created",
		AgentSession: &webhook.AgentSession{
			Issue: webhook.Issue{Identifier: "CEE-9"},
		},
	}
	in := Input{Payload: payload}
	first := Route(in, repos)
	second := Route(in, repos)
	assert.Equal(t, first, second)
}

func TestStopSignalClassification(t *testing.T) {
	payload := webhook.Payload{
		Type:          "AgentSessionEvent",
		AgentActivity: &webhook.AgentActivity{Signal: "stop"},
	}
	assert.Equal(t, webhook.IntentSessionStopSignal, payload.Classify())
}
