// Package chromium drives a running Chromium browser over the DevTools protocol.
package chromium

import (
	"context"
	"fmt"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/cdp"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/trace"
)

// Browser is a connection to a running browser.
type Browser struct {
	client *cdp.Client
	logger *log.Logger
	tracer *trace.Tracer

	product   string
	userAgent string
}

// Option configures a Browser.
type Option func(*Browser)

// WithTracer traces the tab calls with t.
func WithTracer(t *trace.Tracer) Option {
	return func(b *Browser) {
		b.tracer = t
	}
}

// Connect connects to the browser exposing the DevTools protocol at wsURL.
func Connect(ctx context.Context, wsURL string, logger *log.Logger, opts ...Option) (*Browser, error) {
	b := &Browser{
		client: cdp.NewClient(ctx, logger),
		logger: logger,
		tracer: trace.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.client.Connect(wsURL); err != nil {
		return nil, errext.WithExitCodeIfNone(
			fmt.Errorf("connecting to browser at %q: %w", wsURL, err), exitcodes.BrowserConnect)
	}

	var err error
	if b.product, b.userAgent, err = b.client.Browser.GetVersion(ctx); err != nil {
		_ = b.client.Close()
		return nil, errext.WithExitCodeIfNone(err, exitcodes.BrowserConnect)
	}
	b.logger.Infof("browser", "connected to %s", b.product)

	return b, nil
}

// Version returns the browser product name and version.
func (b *Browser) Version() string {
	return b.product
}

// UserAgent returns the browser's user agent.
func (b *Browser) UserAgent() string {
	return b.userAgent
}

// NewTab opens a blank tab and attaches to it.
func (b *Browser) NewTab(ctx context.Context) (api.Tab, error) {
	targetID, err := b.client.Target.CreateTarget(ctx, "about:blank")
	if err != nil {
		return nil, fmt.Errorf("creating tab: %w", err)
	}
	sessionID, err := b.client.Target.AttachToTarget(ctx, targetID)
	if err != nil {
		_ = b.client.Target.CloseTarget(ctx, targetID)
		return nil, fmt.Errorf("creating tab: %w", err)
	}

	t := newTab(b.client, b.logger, b.tracer, targetID, sessionID)
	sctx := t.sessionCtx(ctx)
	if err := b.client.Page.Enable(sctx); err != nil {
		_ = t.Close(ctx)
		return nil, fmt.Errorf("creating tab: %w", err)
	}
	if err := b.client.Runtime.Enable(sctx); err != nil {
		_ = t.Close(ctx)
		return nil, fmt.Errorf("creating tab: %w", err)
	}
	b.logger.Debugf("browser", "tid:%s sid:%s tab created", targetID, sessionID)

	return t, nil
}

// Close closes the connection to the browser. The browser itself keeps
// running.
func (b *Browser) Close() error {
	return b.client.Close()
}
