package server

import (
	"context"
	"fmt"
	"net/http"
)

// AwaitOAuthCallback starts a one-shot local listener on port, prints the
// URL the operator must open in a browser to complete the OAuth flow
// (browser navigation and the tracker's OAuth app itself are out-of-scope
// external collaborators), and blocks until GET /callback arrives or ctx
// is cancelled. Used by the CLI's refresh-token and add-repository
// wizards, which don't run the long-lived Shared Application Server.
func AwaitOAuthCallback(ctx context.Context, authorizeURL string, port int) (token, workspaceID, workspaceName string, err error) {
	resultCh := make(chan oauthOutcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		outcome := oauthOutcome{
			Token:         r.URL.Query().Get("token"),
			WorkspaceID:   r.URL.Query().Get("workspaceId"),
			WorkspaceName: r.URL.Query().Get("workspaceName"),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, oauthCallbackPage)
		select {
		case resultCh <- outcome:
		default:
		}
	})

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer srv.Shutdown(context.Background())

	fmt.Printf("Open the following URL to continue:\n  %s\n", authorizeURL)

	select {
	case outcome := <-resultCh:
		return outcome.Token, outcome.WorkspaceID, outcome.WorkspaceName, nil
	case err := <-errCh:
		return "", "", "", err
	case <-ctx.Done():
		return "", "", "", ctx.Err()
	}
}
