package orchestrator

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/snapshot"
)

// Restore reconstitutes sessions from a loaded snapshot document and, for
// every session that was active, resumes it at its current phase using
// the stored agent-side token. Sessions whose workspace directory no
// longer exists are marked errored instead.
//
// currentAgentPid is always cleared on restore: no agent process survives
// a restart, so any live-agent marker in the snapshot is stale by
// definition.
func (o *Orchestrator) Restore(ctx context.Context, doc *snapshot.Document, repos map[string]config.RepositoryConfig) {
	o.parentChild.restore(doc.ParentChildMap)

	sessions := make([]*session.Session, 0, len(doc.Sessions))
	for _, sess := range doc.Sessions {
		sess.CurrentAgentPID = 0
		sessions = append(sessions, sess)
	}
	o.store.Restore(sessions)

	for _, sess := range sessions {
		if sess.Status != session.StatusActive {
			continue
		}
		if _, err := os.Stat(sess.Workspace.Path); err != nil {
			o.log.Warn("restore: workspace missing, marking session errored",
				zap.String("sessionId", sess.ID), zap.String("path", sess.Workspace.Path))
			sess.Status = session.StatusErrored
			continue
		}
		if sess.ProcedureState.IsComplete() {
			continue
		}
		repo, ok := repos[sess.RepositoryID]
		if !ok {
			o.log.Warn("restore: unknown repository for session, marking errored",
				zap.String("sessionId", sess.ID), zap.String("repositoryId", sess.RepositoryID))
			sess.Status = session.StatusErrored
			continue
		}
		o.do(sess.ID, func() {
			o.launchPhase(ctx, sess, repo, true, "")
		})
	}
	o.persist()
}
