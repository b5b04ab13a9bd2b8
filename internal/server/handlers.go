package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/pkg/webhook"
)

// signatureHeader is the header carrying the hex-encoded HMAC-SHA256 of
// the raw request body.
const signatureHeader = "X-Webhook-Signature"

// handleWebhook verifies the shared-secret HMAC, parses the payload, and
// hands it to the dispatcher asynchronously so the handler itself returns
// within the soft 2s deadline regardless of how long routing + the
// orchestrator operation takes.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading body"})
		return
	}

	if !verifySignature(s.cfg.WebhookSecret, body, c.GetHeader(signatureHeader)) {
		// SignatureError: dropped silently aside from a log line, never
		// surfaced to the caller as anything but a generic 401 so a
		// forged request learns nothing about why it failed.
		s.log.Warn("webhook: signature mismatch, dropping")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	// ReadAll above drained c.Request.Body; restore it so ShouldBindJSON
	// below has something to read.
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var payload webhook.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	// Acknowledge immediately; dispatch runs detached from the request's
	// context so cancellation on HTTP response flush never aborts it.
	go s.dispatcher.Dispatch(context.Background(), payload)

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// handleOAuthCallback extracts token/workspaceId/workspaceName and
// resolves the matching pending flow (by the non-standard `state` query
// param if present, else the sole pending flow), then serves a small
// self-closing HTML page.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	outcome := oauthOutcome{
		Token:         c.Query("token"),
		WorkspaceID:   c.Query("workspaceId"),
		WorkspaceName: c.Query("workspaceName"),
	}

	var resolved bool
	if flowID := c.Query("state"); flowID != "" {
		resolved = s.pendingOAuth.Resolve(flowID, outcome)
	} else {
		resolved = s.pendingOAuth.ResolveAny(outcome)
	}

	if !resolved {
		s.log.Warn("oauth callback: no pending flow to resolve", zap.String("workspaceId", outcome.WorkspaceID))
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, oauthCallbackPage)
}

const oauthCallbackPage = `<!DOCTYPE html>
<html>
<head><title>cyrus</title></head>
<body>
<p>Authentication complete. You can close this window.</p>
<script>window.close();</script>
</body>
</html>`
