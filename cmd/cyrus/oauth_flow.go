package main

import (
	"context"
	"time"

	"github.com/go-cyrus/orchestrator/internal/server"
)

// oauthFlowTimeout bounds the interactive OAuth flow per §5 ("OAuth flow
// 5 min").
const oauthFlowTimeout = 5 * time.Minute

// oauthCallbackPort is the local port the CLI's one-shot callback
// listener binds while the operator completes the OAuth flow in their
// browser.
const oauthCallbackPort = 3457

// runOAuthBrowserFlow drives one interactive OAuth round-trip and returns
// the issued token. The authorize-URL construction and the tracker's own
// OAuth app are out-of-scope external collaborators (§1); this wires the
// CLI side of the exchange that the rest of the system depends on.
func runOAuthBrowserFlow(ctx context.Context) (string, error) {
	flowCtx, cancel := context.WithTimeout(ctx, oauthFlowTimeout)
	defer cancel()

	authorizeURL := "https://linear.app/oauth/authorize" // placeholder; real URL assembled by the out-of-scope OAuth client
	token, _, _, err := server.AwaitOAuthCallback(flowCtx, authorizeURL, oauthCallbackPort)
	return token, err
}
