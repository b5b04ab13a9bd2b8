package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/tracker"
)

// consumeEvents drains one phase's event stream to completion, posting
// tracker activity as it goes and dispatching the terminal end event back
// onto the session's own actor as HandleAgentPhaseEnd. Stream semantics
// guarantee events arrive in order and the stream closes exactly once,
// with end.
func (o *Orchestrator) consumeEvents(sessionID string, repo config.RepositoryConfig, suppressIntermediate bool, events <-chan agentrunner.Event) {
	var agentToken string
	exitCode := 0

	for ev := range events {
		switch ev.Kind {
		case agentrunner.EventSystemInit:
			if ev.SystemInit != nil {
				agentToken = ev.SystemInit.AgentToken
			}
		case agentrunner.EventThought:
			if !suppressIntermediate && ev.Thought != nil {
				o.postActivity(sessionID, tracker.ActivityThought, ev.Thought.Text)
			}
		case agentrunner.EventAction:
			if !suppressIntermediate && ev.Action != nil {
				o.postActivity(sessionID, tracker.ActivityAction, ev.Action.ToolName)
			}
		case agentrunner.EventActionResult:
			// Outcome of an action; follows the same suppression rule as
			// the action that triggered it.
			if !suppressIntermediate && ev.ActionResult != nil {
				o.postActivity(sessionID, tracker.ActivityAction, ev.ActionResult.ToolName)
			}
		case agentrunner.EventResponse:
			if ev.Response != nil {
				o.postActivity(sessionID, tracker.ActivityResponse, ev.Response.Text)
				o.appendEntry(sessionID, session.EntryResponse, ev.Response.Text)
			}
		case agentrunner.EventError:
			if ev.Error != nil {
				o.log.Error("agent reported error", zap.String("sessionId", sessionID), zap.String("message", ev.Error.Message))
				o.appendEntry(sessionID, session.EntryResult, ev.Error.Message)
			}
		case agentrunner.EventEnd:
			if ev.End != nil {
				exitCode = ev.End.ExitCode
			}
		}
	}

	o.HandleAgentPhaseEnd(context.Background(), sessionID, repo, agentToken, exitCode)
}

// appendEntry records a log entry on a session from outside its actor,
// routed through the actor to preserve the single-writer invariant.
func (o *Orchestrator) appendEntry(sessionID string, kind session.EntryKind, payload interface{}) {
	o.do(sessionID, func() {
		if sess, ok := o.store.Get(sessionID); ok {
			sess.AppendEntry(kind, payload)
			o.persist()
		}
	})
}

// postActivity posts one activity to the tracker in the background,
// retrying any failure with trackerPostBackoff up to
// maxTrackerPostAttempts times, then logging the last error and
// abandoning the post. A rejected token is not told apart from a
// transport failure: it is retried and logged the same way.
func (o *Orchestrator) postActivity(sessionID string, kind tracker.ActivityKind, text string) {
	sess, ok := o.store.Get(sessionID)
	if !ok {
		return
	}
	token := sess.CurrentAgentSessionToken

	o.inFlight.Add(1)
	go func() {
		defer o.inFlight.Done()
		for attempt := 0; attempt < maxTrackerPostAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := o.trackerClient.PostActivity(ctx, token, tracker.Activity{SessionID: sessionID, Kind: kind, Text: text})
			cancel()
			if err == nil {
				return
			}
			if attempt == maxTrackerPostAttempts-1 {
				o.log.Error("tracker: abandoning activity post after repeated failures",
					zap.String("sessionId", sessionID), zap.Error(&TransportError{Op: "post activity", Err: err}))
				return
			}
			time.Sleep(trackerPostBackoff(attempt))
		}
	}()
}
