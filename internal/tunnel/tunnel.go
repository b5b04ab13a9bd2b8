// Package tunnel defines the seam used when the server is not bound to
// an externally reachable host. The real third-party tunnel SDK is an
// out-of-scope external collaborator; this package gives internal/server
// a real call site without importing it.
package tunnel

import "context"

// Provider opens and closes a public URL fronting a local port.
type Provider interface {
	Open(ctx context.Context, localPort int) (publicURL string, err error)
	Close(ctx context.Context) error
}

// noopProvider returns a pre-configured base URL unchanged, for when the
// operator has already arranged their own public URL (CYRUS_BASE_URL)
// and no live tunnel is needed.
type noopProvider struct {
	baseURL string
}

// NewNoop constructs a Provider that never opens a real tunnel and
// simply hands back baseURL on Open.
func NewNoop(baseURL string) Provider {
	return &noopProvider{baseURL: baseURL}
}

func (p *noopProvider) Open(ctx context.Context, localPort int) (string, error) {
	return p.baseURL, nil
}

func (p *noopProvider) Close(ctx context.Context) error {
	return nil
}
