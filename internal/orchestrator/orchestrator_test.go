package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/procedure"
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

func testRepo(t *testing.T) config.RepositoryConfig {
	t.Helper()
	root := t.TempDir()
	return config.RepositoryConfig{
		ID:            "repo-1",
		RootPath:      root,
		BaseBranch:    "main",
		WorkspaceRoot: t.TempDir(),
		AllowedTools:  []string{"Read", "Edit"},
		IsActive:      true,
	}
}

func newTestOrchestrator(t *testing.T, runner agentrunner.Runner) (*Orchestrator, *tracker.MockClient) {
	t.Helper()
	mockTracker := tracker.NewMockClient()
	o := New(Deps{
		Log:         testLogger(t),
		Store:       session.NewStore(),
		Provisioner: workspace.New("", testLogger(t)),
		Runner:      runner,
		Tracker:     mockTracker,
		Writer:      nil,
	})
	return o, mockTracker
}

func simpleCreatedEvent(sessionID string) webhook.Payload {
	return webhook.Payload{
		Type:   "AgentSessionEvent",
		Action: "created",
		AgentSession: &webhook.AgentSession{
			ID: sessionID,
			Issue: webhook.Issue{
				ID:         "issue-1",
				Identifier: "CEE-1",
				Title:      "Fix the thing",
			},
		},
	}
}

func TestHandleSessionCreatedIsIdempotent(t *testing.T) {
	runner := agentrunner.NewMockRunner(agentrunner.Script{
		{Kind: agentrunner.EventSystemInit, SystemInit: &agentrunner.SystemInitPayload{AgentToken: "tok-1"}},
		{Kind: agentrunner.EventEnd, End: &agentrunner.EndPayload{ExitCode: 0}},
	})
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)
	event := simpleCreatedEvent("sess-1")

	require.NoError(t, o.HandleSessionCreated(context.Background(), event, repo))
	require.NoError(t, o.HandleSessionCreated(context.Background(), event, repo))

	sess, ok := o.store.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "sess-1", sess.ID)
}

func TestHandleSessionCreatedLaunchesFirstPhase(t *testing.T) {
	runner := agentrunner.NewMockRunner(agentrunner.Script{
		{Kind: agentrunner.EventSystemInit, SystemInit: &agentrunner.SystemInitPayload{AgentToken: "tok-1"}},
		{Kind: agentrunner.EventResponse, Response: &agentrunner.ResponsePayload{Text: "done"}},
		{Kind: agentrunner.EventEnd, End: &agentrunner.EndPayload{ExitCode: 0}},
	})
	o, mockTracker := newTestOrchestrator(t, runner)
	repo := testRepo(t)
	event := simpleCreatedEvent("sess-2")

	require.NoError(t, o.HandleSessionCreated(context.Background(), event, repo))

	require.Eventually(t, func() bool {
		sess, ok := o.store.Get("sess-2")
		return ok && sess.ProcedureState.CurrentPhaseIndex > 0
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(mockTracker.Posted) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandleSessionStopSignalTerminatesLiveAgent(t *testing.T) {
	runner := agentrunner.NewMockRunner()
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)

	sess := &session.Session{
		ID:                       "sess-3",
		Status:                   session.StatusActive,
		RepositoryID:             repo.ID,
		CurrentAgentPID:          1,
		CurrentAgentSessionToken: "tok-live",
		Workspace:                session.Workspace{Path: t.TempDir()},
	}
	o.store.Put(sess)

	event := webhook.Payload{
		AgentSession:  &webhook.AgentSession{ID: "sess-3"},
		AgentActivity: &webhook.AgentActivity{Signal: "stop", ActorName: "alice"},
	}
	require.NoError(t, o.HandleSessionStopSignal(context.Background(), event, repo))

	got, ok := o.store.Get("sess-3")
	require.True(t, ok)
	assert.Equal(t, session.StatusComplete, got.Status)
	assert.False(t, got.HasLiveAgent())
	require.NotEmpty(t, got.Entries)
	last := got.Entries[len(got.Entries)-1]
	assert.Equal(t, session.EntryResponse, last.Kind)
	text, ok := last.Payload.(string)
	require.True(t, ok)
	assert.Contains(t, text, "stopped working")
	assert.Contains(t, text, "Stop Signal:** Received from")
	assert.Contains(t, text, "alice")
}

func TestHandleAgentPhaseEndAdvancesAndCompletes(t *testing.T) {
	runner := agentrunner.NewMockRunner(agentrunner.Script{
		{Kind: agentrunner.EventSystemInit, SystemInit: &agentrunner.SystemInitPayload{AgentToken: "tok-2"}},
		{Kind: agentrunner.EventEnd, End: &agentrunner.EndPayload{ExitCode: 0}},
	})
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)

	sess := &session.Session{
		ID:             "sess-4",
		Status:         session.StatusActive,
		RepositoryID:   repo.ID,
		ProcedureState: procedure.Initialize("simple-question"),
		Workspace:      session.Workspace{Path: t.TempDir()},
	}
	o.store.Put(sess)

	o.HandleAgentPhaseEnd(context.Background(), "sess-4", repo, "tok-2", 0)

	require.Eventually(t, func() bool {
		got, ok := o.store.Get("sess-4")
		return ok && got.ProcedureState.CurrentPhaseIndex == 2 && got.Status == session.StatusComplete
	}, time.Second, 10*time.Millisecond)
}

func TestDeliverFeedbackToChildReturnsWithinBudget(t *testing.T) {
	runner := agentrunner.NewMockRunner()
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)

	sess := &session.Session{
		ID:             "child-1",
		Status:         session.StatusAwaitingInput,
		RepositoryID:   repo.ID,
		ProcedureState: procedure.Initialize("simple-question"),
		Workspace:      session.Workspace{Path: t.TempDir()},
	}
	o.store.Put(sess)

	start := time.Now()
	require.NoError(t, o.DeliverFeedbackToChild(context.Background(), "child-1", "looks good", repo))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestHandleSessionCreatedLinksParentForSubIssue(t *testing.T) {
	runner := agentrunner.NewMockRunner(agentrunner.Script{
		{Kind: agentrunner.EventSystemInit, SystemInit: &agentrunner.SystemInitPayload{AgentToken: "tok-parent"}},
		{Kind: agentrunner.EventEnd, End: &agentrunner.EndPayload{ExitCode: 0}},
	})
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)

	parentEvent := webhook.Payload{
		Type: "AgentSessionEvent", Action: "created",
		AgentSession: &webhook.AgentSession{
			ID:    "parent-sess",
			Issue: webhook.Issue{ID: "issue-parent", Identifier: "CEE-3", Title: "Refactor API"},
		},
	}
	require.NoError(t, o.HandleSessionCreated(context.Background(), parentEvent, repo))

	childEvent := webhook.Payload{
		Type: "AgentSessionEvent", Action: "created",
		AgentSession: &webhook.AgentSession{
			ID: "child-sess",
			Issue: webhook.Issue{
				ID: "issue-child", Identifier: "CEE-7", Title: "Fix bug",
				ParentID: "issue-parent",
			},
		},
	}
	require.NoError(t, o.HandleSessionCreated(context.Background(), childEvent, repo))

	childSess, ok := o.store.Get("child-sess")
	require.True(t, ok)
	assert.Equal(t, "parent-sess", childSess.ParentSessionID)

	parent, ok := o.parentChild.parentOf("child-sess")
	require.True(t, ok)
	assert.Equal(t, "parent-sess", parent)
}

func TestHandleSessionCreatedAppliesRepositoryLabelPromptOverride(t *testing.T) {
	runner := agentrunner.NewMockRunner(agentrunner.Script{
		{Kind: agentrunner.EventSystemInit, SystemInit: &agentrunner.SystemInitPayload{AgentToken: "tok-override"}},
		{Kind: agentrunner.EventEnd, End: &agentrunner.EndPayload{ExitCode: 0}},
	})
	o, _ := newTestOrchestrator(t, runner)
	repo := testRepo(t)
	repo.LabelPrompts = map[string]string{"Security": "Treat this as a security-sensitive fix; do not log secrets."}

	event := webhook.Payload{
		Type: "AgentSessionEvent", Action: "created",
		AgentSession: &webhook.AgentSession{
			ID: "sess-override",
			Issue: webhook.Issue{
				ID: "issue-override", Identifier: "CEE-9", Title: "Rotate leaked key",
				Labels: []string{"Bug", "Security"},
			},
		},
	}
	require.NoError(t, o.HandleSessionCreated(context.Background(), event, repo))

	sess, ok := o.store.Get("sess-override")
	require.True(t, ok)
	assert.Equal(t, repo.LabelPrompts["Security"], sess.ProcedureState.SystemPromptOverride)
}

