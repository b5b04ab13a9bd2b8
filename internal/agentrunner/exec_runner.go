package agentrunner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/logger"
)

const (
	defaultAgentCommand = "claude"
	gracefulStopTimeout = 5 * time.Second
	acpHandshakeTimeout = 30 * time.Second
)

// ExecRunner shells out to a configured agent binary and drives it over
// the Agent Control Protocol (JSON-RPC 2.0 on the subprocess's own
// stdin/stdout), mirroring the teacher's
// internal/agentctl/server/adapter/transport/acp adapter: one
// ClientSideConnection per running agent, an acp.Client implementation
// serving the agent's file and permission requests, and the process
// reaped in the background. The ACP session id doubles as this runner's
// agent token, so a later Resume's ResumeToken maps directly onto
// LoadSession.
type ExecRunner struct {
	command string
	log     *logger.Logger

	mu     sync.Mutex
	agents map[string]*runningAgent
}

type runningAgent struct {
	cmd    *exec.Cmd
	conn   *acp.ClientSideConnection
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExecRunner constructs an ExecRunner. command defaults to "claude" if
// empty.
func NewExecRunner(command string, log *logger.Logger) *ExecRunner {
	if command == "" {
		command = defaultAgentCommand
	}
	return &ExecRunner{command: command, log: log, agents: make(map[string]*runningAgent)}
}

func (r *ExecRunner) Start(ctx context.Context, req StartRequest) (string, <-chan Event, error) {
	return r.spawn(ctx, req, false)
}

func (r *ExecRunner) Resume(ctx context.Context, req StartRequest) (string, <-chan Event, error) {
	if req.ResumeToken == "" {
		return "", nil, fmt.Errorf("agentrunner: Resume requires a ResumeToken")
	}
	return r.spawn(ctx, req, true)
}

func (r *ExecRunner) spawn(ctx context.Context, req StartRequest, resuming bool) (string, <-chan Event, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, r.command, buildArgs(req)...)
	cmd.Dir = req.WorkspacePath
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return "", nil, fmt.Errorf("agentrunner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", nil, fmt.Errorf("agentrunner: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	events := make(chan Event, 16)
	client := newACPClient(req.WorkspacePath, req.AllowedTools, req.DisallowedTools, r.log, events)
	conn := acp.NewClientSideConnection(client, stdin, stdout)
	conn.SetLogger(slog.Default().With("component", "agentrunner.acp"))

	if err := cmd.Start(); err != nil {
		cancel()
		return "", nil, fmt.Errorf("agentrunner: starting %s: %w", r.command, err)
	}

	sessionID, err := r.handshake(procCtx, conn, req, resuming)
	if err != nil {
		cancel()
		_ = cmd.Wait()
		return "", nil, err
	}
	token := string(sessionID)

	agent := &runningAgent{cmd: cmd, conn: conn, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.agents[token] = agent
	r.mu.Unlock()

	go r.awaitExit(token, agent, events)
	go r.converse(procCtx, agent, client, sessionID, req, events)

	return token, events, nil
}

// handshake performs the ACP Initialize call and opens (or resumes) a
// session, run synchronously so spawn can hand the caller a stable token
// before returning.
func (r *ExecRunner) handshake(procCtx context.Context, conn *acp.ClientSideConnection, req StartRequest, resuming bool) (acp.SessionId, error) {
	initCtx, initCancel := context.WithTimeout(procCtx, acpHandshakeTimeout)
	defer initCancel()

	if _, err := conn.Initialize(initCtx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientInfo:      &acp.Implementation{Name: "cyrus-orchestrator", Version: "1.0.0"},
	}); err != nil {
		return "", fmt.Errorf("agentrunner: ACP initialize failed: %w", err)
	}

	if resuming {
		sessionID := acp.SessionId(req.ResumeToken)
		if _, err := conn.LoadSession(initCtx, acp.LoadSessionRequest{SessionId: sessionID, Cwd: req.WorkspacePath}); err == nil {
			return sessionID, nil
		}
		r.log.Warn("agentrunner: resume session load failed, starting a fresh session",
			zap.String("resumeToken", req.ResumeToken))
	}

	resp, err := conn.NewSession(initCtx, acp.NewSessionRequest{Cwd: req.WorkspacePath})
	if err != nil {
		return "", fmt.Errorf("agentrunner: new session failed: %w", err)
	}
	return resp.SessionId, nil
}

// converse emits system-init, sends the phase's prompt, and reports the
// accumulated response text once the turn completes. Runs in its own
// goroutine; the agent process's own exit (awaitExit) is what ultimately
// closes events.
func (r *ExecRunner) converse(procCtx context.Context, agent *runningAgent, client *acpClient, sessionID acp.SessionId, req StartRequest, events chan<- Event) {
	events <- Event{Kind: EventSystemInit, SystemInit: &SystemInitPayload{AgentToken: string(sessionID)}}

	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}
	_, err := agent.conn.Prompt(procCtx, acp.PromptRequest{
		SessionId: sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(prompt)},
	})
	if err != nil {
		r.log.Error("agentrunner: prompt failed", zap.String("sessionId", string(sessionID)), zap.Error(err))
		events <- Event{Kind: EventError, Error: &ErrorPayload{Message: err.Error()}}
	} else if text := client.takeBufferedText(); text != "" {
		events <- Event{Kind: EventResponse, Response: &ResponsePayload{Text: text}}
	}

	// One prompt is one phase run to completion; once the turn is done the
	// agent process is sent SIGTERM, and awaitExit reports EventEnd when it
	// exits.
	_ = agent.cmd.Process.Signal(syscall.SIGTERM)
}

func buildArgs(req StartRequest) []string {
	var args []string
	for _, dir := range req.ExtraReadableDirs {
		args = append(args, "--add-dir", dir)
	}
	return args
}

func (r *ExecRunner) awaitExit(token string, agent *runningAgent, events chan<- Event) {
	err := agent.cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	events <- Event{Kind: EventEnd, End: &EndPayload{ExitCode: exitCode}}
	close(events)
	close(agent.done)

	r.mu.Lock()
	delete(r.agents, token)
	r.mu.Unlock()
}

func (r *ExecRunner) Stop(ctx context.Context, agentToken string) error {
	r.mu.Lock()
	agent, ok := r.agents[agentToken]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if agent.cmd.Process != nil {
		_ = agent.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-agent.done:
		return nil
	case <-time.After(gracefulStopTimeout):
		agent.cancel() // hard terminate
		<-agent.done
		return nil
	case <-ctx.Done():
		agent.cancel()
		return ctx.Err()
	}
}

func (r *ExecRunner) IsRunning(agentToken string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.agents[agentToken]
	return ok
}
