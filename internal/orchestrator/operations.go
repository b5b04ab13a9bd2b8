package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/procedure"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/sysprompt"
	"github.com/go-cyrus/orchestrator/internal/workspace"
	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

const (
	newMessageTemplate = "## New message from user\n---\n%s\n---"
	feedbackTemplate   = "## Received feedback from orchestrator\n---\n%s\n---"
)

var tracer = otel.Tracer("github.com/go-cyrus/orchestrator/internal/orchestrator")

// HandleSessionCreated is idempotent on sessionId: creates a Session,
// provisions its workspace, classifies the procedure, and launches the
// first phase.
func (o *Orchestrator) HandleSessionCreated(ctx context.Context, event webhook.Payload, repo config.RepositoryConfig) error {
	if event.AgentSession == nil {
		return fmt.Errorf("orchestrator: session-created event missing agentSession")
	}
	sessionID := event.AgentSession.ID
	if _, exists := o.store.Get(sessionID); exists {
		return nil // idempotent
	}

	issue := event.AgentSession.Issue
	threadType := session.ThreadIssueRoot
	if event.AgentSession.Comment != nil {
		threadType = session.ThreadCommentThread
	}

	var procErr error
	o.do(sessionID, func() {
		ws, err := o.provisioner.Provision(ctx, o.workspaceIssueRef(repo.ID, issue), repo)
		if err != nil {
			procErr = fmt.Errorf("orchestrator: provisioning workspace: %w", err)
			return
		}

		procedureName, variant, override := classifyProcedure(threadType, issue, repo.LabelPrompts)
		state := procedure.Initialize(procedureName)
		state.Variant = string(variant)
		state.SystemPromptOverride = override

		now := time.Now()
		sess := &session.Session{
			ID:         sessionID,
			ThreadType: threadType,
			Status:     session.StatusPending,
			IssueRef: session.IssueRef{
				ID:         issue.ID,
				Identifier: issue.Identifier,
				Title:      issue.Title,
				ParentID:   issue.ParentID,
			},
			RepositoryID:   repo.ID,
			Workspace:      session.Workspace{Path: ws.Path, IsWorktree: ws.IsWorktree},
			ProcedureState: state,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		// If this issue is a sub-issue of one with an existing session,
		// record the delegation link: the parent/child map's stated
		// lifetime is "inserted when a parent phase spawns a
		// sub-session", which for a tracker-driven thread means the new
		// session's issue carries the parent issue's id.
		if issue.ParentID != "" {
			if parents := o.store.ByIssueRoot(repo.ID, issue.ParentID); len(parents) > 0 {
				sess.ParentSessionID = parents[0].ID
				o.parentChild.set(sess.ID, parents[0].ID)
			}
		}

		o.store.Put(sess)
		o.launchPhase(ctx, sess, repo, false, "")
		o.persist()
	})
	return procErr
}

// HandleSessionPrompted looks up the existing session; if none exists it
// is treated as session-created. A running agent is stopped and a fresh
// phase-primary run started resuming the same agent-side token; an idle
// session is simply resumed. Both cases frame the new message as markdown.
func (o *Orchestrator) HandleSessionPrompted(ctx context.Context, event webhook.Payload, repo config.RepositoryConfig) error {
	if event.AgentSession == nil {
		return fmt.Errorf("orchestrator: session-prompted event missing agentSession")
	}
	sessionID := event.AgentSession.ID
	if _, exists := o.store.Get(sessionID); !exists {
		return o.HandleSessionCreated(ctx, event, repo)
	}

	body := ""
	if event.AgentSession.Comment != nil {
		body = event.AgentSession.Comment.Body
	}
	message := fmt.Sprintf(newMessageTemplate, body)

	o.do(sessionID, func() {
		sess, ok := o.store.Get(sessionID)
		if !ok {
			return
		}

		wasRunning := sess.HasLiveAgent()

		switch {
		case sess.ProcedureState.IsComplete():
			procedureName, variant, override := classifyProcedure(sess.ThreadType, event.AgentSession.Issue, repo.LabelPrompts)
			sess.ProcedureState = procedure.Reinitialize(procedureName)
			sess.ProcedureState.Variant = string(variant)
			sess.ProcedureState.SystemPromptOverride = override
		case wasRunning:
			// "a fresh phase-primary run": restart the same procedure at
			// its first phase rather than wherever the stopped run left off.
			variant := sess.ProcedureState.Variant
			override := sess.ProcedureState.SystemPromptOverride
			sess.ProcedureState = procedure.Reinitialize(sess.ProcedureState.ProcedureName)
			sess.ProcedureState.Variant = variant
			sess.ProcedureState.SystemPromptOverride = override
		}

		if wasRunning {
			stopCtx, cancel := context.WithTimeout(ctx, gracefulStopTimeout)
			_ = o.runner.Stop(stopCtx, sess.CurrentAgentSessionToken)
			cancel()
			sess.CurrentAgentPID = 0
		}
		o.launchPhase(ctx, sess, repo, true, message)
		o.persist()
	})
	return nil
}

// HandleSessionStopSignal terminates the session's live agent (graceful
// first, hard after the grace period) and records a response entry
// naming the acting user.
func (o *Orchestrator) HandleSessionStopSignal(ctx context.Context, event webhook.Payload, repo config.RepositoryConfig) error {
	if event.AgentSession == nil {
		return fmt.Errorf("orchestrator: stop-signal event missing agentSession")
	}
	sessionID := event.AgentSession.ID

	actor := ""
	if event.AgentActivity != nil {
		actor = event.AgentActivity.ActorName
	}

	o.do(sessionID, func() {
		sess, ok := o.store.Get(sessionID)
		if !ok {
			return
		}
		if sess.HasLiveAgent() {
			stopCtx, cancel := context.WithTimeout(ctx, gracefulStopTimeout)
			_ = o.runner.Stop(stopCtx, sess.CurrentAgentSessionToken)
			cancel()
			sess.CurrentAgentPID = 0
		}
		sess.AppendEntry(session.EntryResponse, fmt.Sprintf("**Stop Signal:** Received from %s. The agent stopped working.", actor))
		sess.Status = session.StatusComplete
		o.parentChild.removeChildrenOfParent(sess.ID)
		o.persist()
	})
	return nil
}

// HandleAgentPhaseEnd advances the procedure and either launches the next
// phase or marks the session complete.
func (o *Orchestrator) HandleAgentPhaseEnd(ctx context.Context, sessionID string, repo config.RepositoryConfig, agentToken string, exitCode int) {
	o.do(sessionID, func() {
		sess, ok := o.store.Get(sessionID)
		if !ok {
			return
		}
		sess.CurrentAgentPID = 0
		if exitCode != 0 {
			phaseName := sess.ProcedureState.ProcedureName
			if phase, err := sess.ProcedureState.CurrentPhase(); err == nil {
				phaseName = phase.Name
			}
			sess.AppendEntry(session.EntryResult, fmt.Sprintf("phase %s exited with code %d", phaseName, exitCode))
		}

		sess.ProcedureState.Advance(agentToken)
		if sess.ProcedureState.IsComplete() {
			sess.Status = session.StatusComplete
			o.parentChild.removeChildrenOfParent(sess.ID)
		} else {
			o.launchPhase(ctx, sess, repo, true, "")
		}
		o.persist()
	})
}

// DeliverFeedbackToChild resumes the child session with the parent's
// feedback framed as markdown. The resume runs on the child's actor in a
// background goroutine; this call does not wait for it and returns once
// feedbackDeliveryBudget (100ms) has elapsed or ctx is done, whichever
// comes first.
func (o *Orchestrator) DeliverFeedbackToChild(ctx context.Context, childSessionID, feedback string, repo config.RepositoryConfig) error {
	message := fmt.Sprintf(feedbackTemplate, feedback)
	deadline, cancel := context.WithTimeout(context.Background(), gracefulStopTimeout)

	o.inFlight.Add(1)
	go func() {
		defer o.inFlight.Done()
		defer cancel()
		o.do(childSessionID, func() {
			sess, ok := o.store.Get(childSessionID)
			if !ok {
				return
			}
			o.launchPhase(deadline, sess, repo, true, message)
			o.persist()
		})
	}()

	select {
	case <-time.After(feedbackDeliveryBudget):
	case <-ctx.Done():
	}
	return nil
}

// launchPhase starts (or resumes) the agent process for sess's current
// phase. Must run on sess's own actor.
func (o *Orchestrator) launchPhase(ctx context.Context, sess *session.Session, repo config.RepositoryConfig, resume bool, appendedMessage string) {
	ctx, span := tracer.Start(ctx, "orchestrator.launchPhase",
		trace.WithAttributes(
			attribute.String("sessionId", sess.ID),
			attribute.String("procedure", sess.ProcedureState.ProcedureName),
			attribute.Int("phaseIndex", sess.ProcedureState.CurrentPhaseIndex),
			attribute.Bool("resume", resume),
		))
	defer span.End()

	phase, err := sess.ProcedureState.CurrentPhase()
	if err != nil {
		span.RecordError(err)
		o.log.Error("launchPhase: no current phase", zap.String("sessionId", sess.ID), zap.Error(err))
		sess.Status = session.StatusErrored
		return
	}

	allowedTools := repo.AllowedTools
	if phase.ToolAllowListOverride != nil {
		allowedTools = phase.ToolAllowListOverride
	}

	prompt := appendedMessage
	if prompt == "" {
		prompt = fmt.Sprintf("Work on issue %s: %s", sess.IssueRef.Identifier, sess.IssueRef.Title)
	}

	systemPrompt := sess.ProcedureState.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = sysprompt.ForVariant(sysprompt.Variant(sess.ProcedureState.Variant))
	}

	req := agentrunner.StartRequest{
		WorkspacePath:   sess.Workspace.Path,
		Prompt:          prompt,
		AllowedTools:    allowedTools,
		DisallowedTools: repo.DisallowedTools,
		SystemPrompt:    systemPrompt,
	}

	var (
		token  string
		events <-chan agentrunner.Event
		rerr   error
	)
	if resume && sess.CurrentAgentSessionToken != "" {
		req.ResumeToken = sess.CurrentAgentSessionToken
		token, events, rerr = o.runner.Resume(ctx, req)
	} else {
		token, events, rerr = o.runner.Start(ctx, req)
	}
	if rerr != nil {
		span.RecordError(rerr)
		o.log.Error("launchPhase: failed to start agent", zap.String("sessionId", sess.ID), zap.Error(rerr))
		sess.Status = session.StatusErrored
		return
	}

	sess.CurrentAgentPID = 1 // liveness marker; the adapter does not expose a real pid across the interface
	sess.CurrentAgentSessionToken = token
	sess.Status = session.StatusActive
	o.store.BindAgentToken(sess.ID, token)

	go o.consumeEvents(sess.ID, repo, phase.SuppressIntermediateOutput, events)
}

// classifyProcedure picks the procedure and system-prompt variant for a
// new or reinitialized session. labelPrompts is the owning repository's
// per-label override map: a label matching one of its keys wins over the
// compiled-in sysprompt.ForLabels mapping entirely, raw text and all.
func classifyProcedure(threadType session.ThreadType, issue webhook.Issue, labelPrompts map[string]string) (string, sysprompt.Variant, string) {
	if threadType == session.ThreadCommentThread && issue.IsClosed {
		return "simple-question", sysprompt.VariantNone, ""
	}
	for _, label := range issue.Labels {
		if override, ok := labelPrompts[label]; ok {
			return procedure.DefaultProcedureName, sysprompt.VariantNone, override
		}
	}
	variant := sysprompt.ForLabels(issue.Labels)
	return procedure.DefaultProcedureName, variant, ""
}

// workspaceIssueRef builds the workspace provisioner's view of an issue,
// resolving the parent issue's branch-naming identity (if any) from any
// existing session on that parent issue.
func (o *Orchestrator) workspaceIssueRef(repositoryID string, issue webhook.Issue) workspace.IssueRef {
	ref := workspace.IssueRef{
		Identifier: issue.Identifier,
		Title:      issue.Title,
		Branch:     issue.Branch,
	}
	if issue.ParentID == "" {
		return ref
	}
	for _, parentSess := range o.store.ByIssueRoot(repositoryID, issue.ParentID) {
		ref.ParentRef = &workspace.IssueRef{
			Identifier: parentSess.IssueRef.Identifier,
			Title:      parentSess.IssueRef.Title,
		}
		break
	}
	return ref
}
