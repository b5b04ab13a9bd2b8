package agentrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRunnerEmitsScriptedEventsInOrder(t *testing.T) {
	script := Script{
		{Kind: EventSystemInit, SystemInit: &SystemInitPayload{AgentToken: "tok-1", Model: "test-model"}},
		{Kind: EventThought, Thought: &ThoughtPayload{Text: "thinking"}},
		{Kind: EventResponse, Response: &ResponsePayload{Text: "done"}},
		{Kind: EventEnd, End: &EndPayload{ExitCode: 0}},
	}
	runner := NewMockRunner(script)

	token, events, err := runner.Start(context.Background(), StartRequest{})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	var kinds []EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventSystemInit, EventThought, EventResponse, EventEnd}, kinds)
}

func TestMockRunnerStopRecordsToken(t *testing.T) {
	runner := NewMockRunner()
	token, events, err := runner.Start(context.Background(), StartRequest{})
	require.NoError(t, err)
	for range events {
	}

	require.NoError(t, runner.Stop(context.Background(), token))
	assert.Equal(t, []string{token}, runner.Stopped())
}

func TestBuildArgsIncludesExtraReadableDirs(t *testing.T) {
	req := StartRequest{ExtraReadableDirs: []string{"/srv/shared", "/srv/other"}}
	args := buildArgs(req)
	assert.Equal(t, []string{"--add-dir", "/srv/shared", "--add-dir", "/srv/other"}, args)
}

func TestBuildArgsEmptyWithNoExtraDirs(t *testing.T) {
	req := StartRequest{SystemPrompt: "you are an agent"}
	assert.Empty(t, buildArgs(req))
}
