package agentrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/logger"
)

// acpClient implements acp.Client for one running phase's agent process,
// grounded on the teacher's internal/agentctl/server/acp.Client: it auto-
// resolves permission requests and serves the agent's file read/write
// calls, but decides permissions against this phase's tool allow/deny
// lists instead of always selecting the first "allow" option, and scopes
// file access to the phase's own workspace rather than any absolute path
// the agent names.
type acpClient struct {
	workspaceRoot   string
	allowedTools    map[string]bool
	disallowedTools map[string]bool
	log             *logger.Logger
	events          chan<- Event

	mu         sync.Mutex
	textBuffer strings.Builder
}

func newACPClient(workspaceRoot string, allowedTools, disallowedTools []string, log *logger.Logger, events chan<- Event) *acpClient {
	return &acpClient{
		workspaceRoot:   workspaceRoot,
		allowedTools:    toToolSet(allowedTools),
		disallowedTools: toToolSet(disallowedTools),
		log:             log,
		events:          events,
	}
}

func toToolSet(tools []string) map[string]bool {
	if len(tools) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tools))
	for _, tool := range tools {
		set[tool] = true
	}
	return set
}

func (c *acpClient) toolAllowed(toolName string) bool {
	if c.disallowedTools[toolName] {
		return false
	}
	if len(c.allowedTools) == 0 {
		return true
	}
	return c.allowedTools[toolName]
}

// takeBufferedText returns and clears the text accumulated from
// AgentMessageChunk notifications since the last call, used to build the
// response event once a Prompt turn completes.
func (c *acpClient) takeBufferedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.textBuffer.String()
	c.textBuffer.Reset()
	return text
}

func (c *acpClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("agentrunner: event channel full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}

// RequestPermission resolves a tool permission request by selecting the
// option matching this phase's allow/deny policy rather than always
// approving, since the allow-list is meant to actually constrain the
// agent's actions.
func (c *acpClient) RequestPermission(ctx context.Context, p acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	title := ""
	if p.ToolCall.Title != nil {
		title = *p.ToolCall.Title
	}
	if len(p.Options) == 0 {
		return acp.RequestPermissionResponse{
			Outcome: acp.RequestPermissionOutcome{Cancelled: &acp.RequestPermissionOutcomeCancelled{}},
		}, nil
	}

	wantAllow := c.toolAllowed(title)
	var selected *acp.PermissionOption
	for i := range p.Options {
		opt := &p.Options[i]
		isAllowOption := opt.Kind == acp.PermissionOptionKindAllowOnce || opt.Kind == acp.PermissionOptionKindAllowAlways
		if isAllowOption == wantAllow {
			selected = opt
			break
		}
	}
	if selected == nil {
		selected = &p.Options[0]
	}

	c.log.Debug("agentrunner: resolved permission request",
		zap.String("tool", title), zap.Bool("allowed", wantAllow))
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Selected: &acp.RequestPermissionOutcomeSelected{OptionId: selected.OptionId},
		},
	}, nil
}

// SessionUpdate translates ACP session notifications into this package's
// Event vocabulary: message chunks accumulate as the eventual response
// text and are also surfaced as thoughts, tool calls become actions, and
// every tool call update becomes an action result named by its tool call
// id.
func (c *acpClient) SessionUpdate(ctx context.Context, n acp.SessionNotification) error {
	u := n.Update
	switch {
	case u.AgentMessageChunk != nil && u.AgentMessageChunk.Content.Text != nil:
		text := u.AgentMessageChunk.Content.Text.Text
		c.mu.Lock()
		c.textBuffer.WriteString(text)
		c.mu.Unlock()
		c.emit(Event{Kind: EventThought, Thought: &ThoughtPayload{Text: text}})
	case u.ToolCall != nil:
		toolName := string(u.ToolCall.Kind)
		if u.ToolCall.Title != nil {
			toolName = *u.ToolCall.Title
		}
		c.emit(Event{Kind: EventAction, Action: &ActionPayload{ToolName: toolName}})
	case u.ToolCallUpdate != nil:
		c.emit(Event{Kind: EventActionResult, ActionResult: &ActionResultPayload{ToolName: string(u.ToolCallUpdate.ToolCallId)}})
	}
	return nil
}

func (c *acpClient) resolvePath(path string) (string, error) {
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(c.workspaceRoot, path)
	}
	rel, err := filepath.Rel(c.workspaceRoot, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("agentrunner: path %q escapes workspace %q", path, c.workspaceRoot)
	}
	return abs, nil
}

func (c *acpClient) ReadTextFile(ctx context.Context, p acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	abs, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}

	content := string(data)
	if p.Line != nil || p.Limit != nil {
		lines := strings.Split(content, "\n")
		start := 0
		if p.Line != nil && *p.Line > 0 {
			start = *p.Line - 1
			if start > len(lines) {
				start = len(lines)
			}
		}
		end := len(lines)
		if p.Limit != nil && *p.Limit > 0 && start+*p.Limit < end {
			end = start + *p.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return acp.ReadTextFileResponse{Content: content}, nil
}

func (c *acpClient) WriteTextFile(ctx context.Context, p acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	abs, err := c.resolvePath(p.Path)
	if err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	if dir := filepath.Dir(abs); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return acp.WriteTextFileResponse{}, err
		}
	}
	return acp.WriteTextFileResponse{}, os.WriteFile(abs, []byte(p.Content), 0o644)
}

// Terminal operations are not supported by this runner: the coding agent
// runs its own sandboxed tool execution and never needs a terminal the
// orchestrator manages directly.
func (c *acpClient) CreateTerminal(ctx context.Context, p acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, fmt.Errorf("agentrunner: terminal operations are not supported")
}

func (c *acpClient) KillTerminalCommand(ctx context.Context, p acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, fmt.Errorf("agentrunner: terminal operations are not supported")
}

func (c *acpClient) TerminalOutput(ctx context.Context, p acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, fmt.Errorf("agentrunner: terminal operations are not supported")
}

func (c *acpClient) ReleaseTerminal(ctx context.Context, p acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, fmt.Errorf("agentrunner: terminal operations are not supported")
}

func (c *acpClient) WaitForTerminalExit(ctx context.Context, p acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, fmt.Errorf("agentrunner: terminal operations are not supported")
}

var _ acp.Client = (*acpClient)(nil)
