// Package credential keeps a managed identity access token fresh for the Azure
// storage client.
package credential

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

// DefaultRefreshInterval ...
const DefaultRefreshInterval = 60 * time.Minute

// Options configures a Provider.
type Options struct {
	IMDS            IMDSOptions
	RefreshInterval time.Duration
	Logger          log.Logger
}

// Provider holds the current token and renews it in the background.
// It implements azcore.TokenCredential.
type Provider struct {
	opts   Options
	logger log.Logger
	token  atomic.Pointer[Token]
	cancel context.CancelFunc
	done   chan struct{}
}

// Start fetches the first token synchronously and starts the refresh loop.
// A failing first fetch is returned and no loop is started.
func Start(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	if opts.IMDS.Endpoint == "" {
		opts.IMDS.Endpoint = DefaultIMDSEndpoint
	}
	if opts.IMDS.APIVersion == "" {
		opts.IMDS.APIVersion = DefaultIMDSAPIVersion
	}
	if opts.IMDS.Client == nil {
		opts.IMDS.Client = retryhttp.NewClient(opts.Logger)
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	p := &Provider{
		opts:   opts,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}

	token, err := FetchIMDSToken(ctx, opts.IMDS)
	if err != nil {
		return nil, err
	}
	p.token.Store(&token)
	p.logger.Debugf("Access token acquired, expires on %s", token.ExpiresOn.Format(time.RFC3339))

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	ready := make(chan struct{})
	go p.refreshLoop(loopCtx, ready)
	<-ready

	return p, nil
}

func (p *Provider) refreshLoop(ctx context.Context, ready chan<- struct{}) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.RefreshInterval)
	defer ticker.Stop()

	close(ready)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Provider) refresh(ctx context.Context) {
	token, err := FetchIMDSToken(ctx, p.opts.IMDS)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Warnf("Failed to renew access token, keeping the previous one: %s", err)
		return
	}
	p.token.Store(&token)
	p.logger.Debugf("Access token renewed, expires on %s", token.ExpiresOn.Format(time.RFC3339))
}

// Token returns the current token.
func (p *Provider) Token() Token {
	return *p.token.Load()
}

// GetToken returns the current token to the Azure SDK's bearer token policy.
func (p *Provider) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	token := p.Token()
	return azcore.AccessToken{Token: token.AccessToken, ExpiresOn: token.ExpiresOn}, nil
}

// Stop cancels the refresh loop and waits for it to exit.
func (p *Provider) Stop() {
	p.cancel()
	<-p.done
}
