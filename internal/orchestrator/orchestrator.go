// Package orchestrator is the central component gluing the Webhook
// Router, Procedure Engine, Agent Runner Adapter, Workspace Provisioner,
// Session Store, and Persistence Store into one end-to-end session
// lifecycle, one tracker-side conversation thread at a time.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-cyrus/orchestrator/internal/agentrunner"
	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/session"
	"github.com/go-cyrus/orchestrator/internal/snapshot"
	"github.com/go-cyrus/orchestrator/internal/tracker"
	"github.com/go-cyrus/orchestrator/internal/workspace"
)

const (
	gracefulStopTimeout    = 5 * time.Second
	feedbackDeliveryBudget = 100 * time.Millisecond
	mailboxBuffer          = 64
)

// sessionActor serialises every mutation of one session behind a single
// goroutine and buffered mailbox channel, the concurrency contract's
// per-session lock implemented as an actor instead.
type sessionActor struct {
	sessionID string
	mailbox   chan func()
	done      chan struct{}
}

func newSessionActor(sessionID string) *sessionActor {
	a := &sessionActor{
		sessionID: sessionID,
		mailbox:   make(chan func(), mailboxBuffer),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *sessionActor) run() {
	defer close(a.done)
	for fn := range a.mailbox {
		fn()
	}
}

// send enqueues fn to run on this session's actor goroutine. Safe to call
// from any goroutine, including the actor itself.
func (a *sessionActor) send(fn func()) {
	a.mailbox <- fn
}

func (a *sessionActor) stop() {
	close(a.mailbox)
}

// Orchestrator is the Session Orchestrator.
type Orchestrator struct {
	log         *logger.Logger
	store       *session.Store
	provisioner *workspace.Provisioner
	runner        agentrunner.Runner
	trackerClient tracker.Client
	writer        *snapshot.Writer
	parentChild   *parentChildMap

	actorsMu sync.Mutex
	actors   map[string]*sessionActor

	inFlight sync.WaitGroup // tracker posts and feedback deliveries started but not yet acknowledged
}

// Deps bundles the Orchestrator's collaborators.
type Deps struct {
	Log         *logger.Logger
	Store       *session.Store
	Provisioner *workspace.Provisioner
	Runner      agentrunner.Runner
	Tracker     tracker.Client
	Writer      *snapshot.Writer
}

// New constructs an Orchestrator. The returned value owns no background
// goroutines until an operation first touches a session; Restore, if
// called, starts actors immediately for the sessions it resumes.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		log:           deps.Log,
		store:         deps.Store,
		provisioner:   deps.Provisioner,
		runner:        deps.Runner,
		trackerClient: deps.Tracker,
		writer:        deps.Writer,
		parentChild:   newParentChildMap(),
		actors:        make(map[string]*sessionActor),
	}
}

// actorFor returns the actor for sessionID, creating and starting one if
// none exists yet.
func (o *Orchestrator) actorFor(sessionID string) *sessionActor {
	o.actorsMu.Lock()
	defer o.actorsMu.Unlock()
	if a, ok := o.actors[sessionID]; ok {
		return a
	}
	a := newSessionActor(sessionID)
	o.actors[sessionID] = a
	return a
}

// do runs fn on sessionID's actor and blocks until it completes,
// providing the synchronous call shape the public operations expose
// while still serialising every mutation through the actor mailbox. A
// panic inside fn is recovered here, logged with its stack, and marks the
// session errored, so one failing session never takes down the others.
func (o *Orchestrator) do(sessionID string, fn func()) {
	done := make(chan struct{})
	o.actorFor(sessionID).send(func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("orchestrator: session operation panicked",
					zap.String("sessionId", sessionID), zap.Any("panic", r), zap.Stack("stack"))
				if sess, ok := o.store.Get(sessionID); ok {
					sess.Status = session.StatusErrored
				}
			}
		}()
		fn()
	})
	<-done
}

// persist enqueues a coalesced snapshot write. Call after any observable
// session state change.
func (o *Orchestrator) persist() {
	if o.writer != nil {
		o.writer.Enqueue()
	}
}

// SnapshotDocument builds the document the Writer persists, deriving
// session records and the parent/child map from current store state.
// Callers close over repoConfigPath to satisfy snapshot.SourceFunc.
func (o *Orchestrator) SnapshotDocument(repoConfigPath string) *snapshot.Document {
	sessions := o.store.All()
	byID := make(map[string]*session.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}
	return &snapshot.Document{
		SchemaVersion:        1,
		RepositoryConfigPath: repoConfigPath,
		Sessions:             byID,
		ParentChildMap:       o.parentChild.snapshot(),
	}
}

// Shutdown waits (bounded) for in-flight tracker posts, then gives the
// snapshot writer up to 3 seconds to flush, mirroring the teacher's
// signal → cancel context → bounded shutdown sequencing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		waitCh := make(chan struct{})
		go func() {
			o.inFlight.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-ctx.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.actorsMu.Lock()
	for _, a := range o.actors {
		a.stop()
	}
	o.actorsMu.Unlock()

	if o.writer != nil {
		o.writer.Await(3 * time.Second)
		o.writer.Close()
	}
	return nil
}
