// Package server implements the Shared Application Server: a single HTTP
// listener serving the inbound tracker webhook and the OAuth callback,
// binding localhost unless external-host mode is set, and opening a
// tunnel for the public webhook base URL when neither applies.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/go-cyrus/orchestrator/internal/logger"
	"github.com/go-cyrus/orchestrator/internal/tunnel"
)

// webhookSoftDeadline is the time budget for acknowledging an inbound
// webhook; all actual handling happens on the dispatcher off this path.
const webhookSoftDeadline = 2 * time.Second

// tunnelReadyTimeout bounds how long Start waits for a tunnel to report
// its public URL before giving up.
const tunnelReadyTimeout = 30 * time.Second

// Config configures one Shared Application Server instance.
type Config struct {
	Port         int
	HostExternal bool
	BaseURL      string // operator-supplied public URL; skips the tunnel when set
	WebhookSecret []byte
}

// Server is the Shared Application Server.
type Server struct {
	log        *logger.Logger
	cfg        Config
	dispatcher *Dispatcher
	tunnel     tunnel.Provider
	pendingOAuth *pendingOAuth

	httpServer *http.Server
	PublicURL  string
}

// New constructs a Server. tunnelProvider is used only when cfg.BaseURL
// is empty and HostExternal is false; pass tunnel.NewNoop("") to disable
// tunnelling outright (e.g. under test).
func New(log *logger.Logger, cfg Config, dispatcher *Dispatcher, tunnelProvider tunnel.Provider) *Server {
	return &Server{
		log:          log,
		cfg:          cfg,
		dispatcher:   dispatcher,
		tunnel:       tunnelProvider,
		pendingOAuth: newPendingOAuth(),
	}
}

// RegisterOAuthFlow allocates a flow-id whose eventual GET /callback will
// be delivered on the returned await function. The CLI's refresh-token /
// add-repository flows do not call it; they use AwaitOAuthCallback.
func (s *Server) RegisterOAuthFlow() (flowID string, await func() (token, workspaceID, workspaceName string, err error)) {
	id, rawAwait := s.pendingOAuth.Register()
	await = func() (string, string, string, error) {
		outcome, err := rawAwait()
		if err != nil {
			return "", "", "", err
		}
		return outcome.Token, outcome.WorkspaceID, outcome.WorkspaceName, nil
	}
	return id, await
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))

	r.POST("/webhook", s.handleWebhook)
	r.GET("/callback", s.handleOAuthCallback)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// requestLogger mirrors the teacher's api.RequestLogger middleware shape:
// one structured log line per request at info level.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Start binds the configured port, opening a tunnel first if the host is
// not externally reachable and no base URL was supplied, then serves
// until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	host := "127.0.0.1"
	if s.cfg.HostExternal {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, s.cfg.Port)

	s.PublicURL = s.cfg.BaseURL
	if s.PublicURL == "" && !s.cfg.HostExternal && s.tunnel != nil {
		tunnelCtx, cancel := context.WithTimeout(ctx, tunnelReadyTimeout)
		publicURL, err := s.tunnel.Open(tunnelCtx, s.cfg.Port)
		cancel()
		if err != nil {
			return fmt.Errorf("server: opening tunnel: %w", err)
		}
		s.PublicURL = publicURL
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("webhook server listening", zap.String("addr", addr), zap.String("publicUrl", s.PublicURL))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes the tunnel before releasing the port, per the tunnel
// lifecycle being tied to the server's.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	if s.tunnel != nil {
		err = s.tunnel.Close(shutdownCtx)
	}
	if s.httpServer != nil {
		if serr := s.httpServer.Shutdown(shutdownCtx); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
