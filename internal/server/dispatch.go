package server

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/config"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/orchestrator"
	"github.com/go-cyrus/orchestrator/internal/router"
	"github.com/go-cyrus/orchestrator/internal/tracker"
	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

// projectLookupTimeout bounds the async tracker fetch the router's
// step 1 (project-name match) depends on; a slow or failing lookup must
// not stall classification, it just falls through to step 2.
const projectLookupTimeout = 3 * time.Second

var tracer = otel.Tracer("github.com/go-cyrus/orchestrator/internal/server")

// Dispatcher owns the live repository list and resolves+routes inbound
// webhook payloads onto the Session Orchestrator. It is the asynchronous
// half of the webhook handler: the HTTP handler enqueues onto it and
// returns within the 2s soft deadline, this runs the actual routing and
// orchestration off the request goroutine.
type Dispatcher struct {
	log     *logger.Logger
	orch    *orchestrator.Orchestrator
	tracker tracker.Client

	mu    sync.RWMutex
	repos []config.RepositoryConfig
}

// NewDispatcher constructs a Dispatcher with an initial repository list.
func NewDispatcher(log *logger.Logger, orch *orchestrator.Orchestrator, trackerClient tracker.Client, repos []config.RepositoryConfig) *Dispatcher {
	d := &Dispatcher{log: log, orch: orch, tracker: trackerClient}
	d.SetRepositories(repos)
	return d
}

// SetRepositories atomically replaces the active repository list, used
// when config.json is reloaded on change.
func (d *Dispatcher) SetRepositories(repos []config.RepositoryConfig) {
	sorted := make([]config.RepositoryConfig, len(repos))
	copy(sorted, repos)
	d.mu.Lock()
	d.repos = sorted
	d.mu.Unlock()
}

func (d *Dispatcher) activeRepositories() []config.RepositoryConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]config.RepositoryConfig, len(d.repos))
	copy(out, d.repos)
	return out
}

func (d *Dispatcher) repositoryByID(id string) (config.RepositoryConfig, bool) {
	for _, r := range d.activeRepositories() {
		if r.ID == id {
			return r, true
		}
	}
	return config.RepositoryConfig{}, false
}

// Dispatch resolves the project name (best-effort), routes the payload,
// and hands it to the matching orchestrator operation. Call asynchronously
// from the webhook handler — this does not return within any particular
// deadline.
func (d *Dispatcher) Dispatch(ctx context.Context, payload webhook.Payload) {
	ctx, span := tracer.Start(ctx, "webhook.dispatch",
		trace.WithAttributes(attribute.String("webhook.type", payload.Type), attribute.String("webhook.action", payload.Action)))
	defer span.End()

	resolvedProject := d.resolveProjectName(ctx, payload)

	result := router.Route(router.Input{Payload: payload, ResolvedProjectName: resolvedProject}, d.activeRepositories())
	if !result.Matched {
		span.SetAttributes(attribute.Bool("webhook.matched", false))
		d.log.Warn("webhook: no repository matched event, dropping",
			zap.String("organizationId", payload.OrganizationID))
		return
	}
	span.SetAttributes(
		attribute.Bool("webhook.matched", true),
		attribute.String("webhook.repositoryId", result.RepositoryID),
		attribute.String("webhook.intent", string(result.Intent)),
	)

	repo, ok := d.repositoryByID(result.RepositoryID)
	if !ok {
		d.log.Error("webhook: router matched unknown repository id", zap.String("repositoryId", result.RepositoryID))
		return
	}

	var err error
	switch result.Intent {
	case webhook.IntentSessionCreated:
		err = d.orch.HandleSessionCreated(ctx, payload, repo)
	case webhook.IntentSessionPrompted:
		err = d.orch.HandleSessionPrompted(ctx, payload, repo)
	case webhook.IntentSessionStopSignal:
		err = d.orch.HandleSessionStopSignal(ctx, payload, repo)
	case webhook.IntentIssueUnassigned, webhook.IntentLegacyNotification:
		// Route-only intents: acknowledged by the router, no orchestrator
		// action defined for them in this system.
		return
	}
	if err != nil {
		d.log.Error("webhook: handling event", zap.String("intent", string(result.Intent)), zap.Error(err))
	}
}

// resolveProjectName performs the router's required async project lookup.
// On any failure or timeout, it returns "" so Route falls through to
// team-key matching rather than aborting. The tracker's payload already
// carries the issue's project name inline in the common case; the
// fetch path below only runs when it's missing, probing each active
// repository's token in turn since the owning repository — and
// therefore the right token — is exactly what routing hasn't decided
// yet.
func (d *Dispatcher) resolveProjectName(ctx context.Context, payload webhook.Payload) string {
	if payload.AgentSession == nil {
		return ""
	}
	if name := payload.AgentSession.Issue.ProjectName; name != "" {
		return name
	}
	if d.tracker == nil {
		return ""
	}

	issueID := payload.AgentSession.Issue.ID
	if issueID == "" {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, projectLookupTimeout)
	defer cancel()

	for _, repo := range d.activeRepositories() {
		name, err := d.tracker.FetchIssueProject(lookupCtx, repo.TrackerToken, issueID)
		if err != nil {
			continue
		}
		if name != "" {
			return name
		}
	}
	return ""
}
