package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/tracker"
	"github.com/go-cyrus/orchestrator/internal/workspace"
	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestDispatcher(t *testing.T, repos []config.RepositoryConfig) (*Dispatcher, *session.Store) {
	t.Helper()
	store := session.NewStore()
	orch := orchestrator.New(orchestrator.Deps{
		Log:         testLogger(t),
		Store:       store,
		Provisioner: workspace.New("", testLogger(t)),
		Runner:      agentrunner.NewMockRunner(),
		Tracker:     tracker.NewMockClient(),
		Writer:      nil,
	})
	return NewDispatcher(testLogger(t), orch, tracker.NewMockClient(), repos), store
}

func teamRepo(t *testing.T) config.RepositoryConfig {
	t.Helper()
	return config.RepositoryConfig{
		ID:            "repo-cee",
		RootPath:      t.TempDir(),
		BaseBranch:    "main",
		WorkspaceRoot: t.TempDir(),
		TeamKeys:      []string{"CEE"},
		AllowedTools:  []string{"Read"},
		IsActive:      true,
	}
}

func TestDispatchRoutesToMatchingRepositoryAndCreatesSession(t *testing.T) {
	d, store := newTestDispatcher(t, []config.RepositoryConfig{teamRepo(t)})

	payload := webhook.Payload{
		Type:           "AgentSessionEvent",
		Action:         "created",
		OrganizationID: "org-1",
		AgentSession: &webhook.AgentSession{
			ID: "sess-1",
			Issue: webhook.Issue{
				ID:         "issue-1",
				Identifier: "CEE-42",
				Title:      "Fix the thing",
			},
		},
	}

	d.Dispatch(context.Background(), payload)

	require.Eventually(t, func() bool {
		_, ok := store.Get("sess-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	sess, ok := store.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "repo-cee", sess.RepositoryID)
}

func TestDispatchDropsUnmatchedEvent(t *testing.T) {
	d, store := newTestDispatcher(t, []config.RepositoryConfig{teamRepo(t)})

	payload := webhook.Payload{
		Type:           "AgentSessionEvent",
		Action:         "created",
		OrganizationID: "org-unknown",
		AgentSession: &webhook.AgentSession{
			ID:    "sess-2",
			Issue: webhook.Issue{ID: "issue-2", Identifier: "ZZZ-1"},
		},
	}

	d.Dispatch(context.Background(), payload)

	assert.Never(t, func() bool {
		_, ok := store.Get("sess-2")
		return ok
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSetRepositoriesReplacesActiveList(t *testing.T) {
	d, store := newTestDispatcher(t, nil)
	d.SetRepositories([]config.RepositoryConfig{teamRepo(t)})

	payload := webhook.Payload{
		Type:           "AgentSessionEvent",
		Action:         "created",
		OrganizationID: "org-1",
		AgentSession: &webhook.AgentSession{
			ID:    "sess-3",
			Issue: webhook.Issue{ID: "issue-3", Identifier: "CEE-7"},
		},
	}
	d.Dispatch(context.Background(), payload)

	require.Eventually(t, func() bool {
		_, ok := store.Get("sess-3")
		return ok
	}, time.Second, 5*time.Millisecond)
}
