package chromium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/cdp"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/trace"
)

const (
	// DefaultNavigationTimeout bounds the wait for a page's load event.
	DefaultNavigationTimeout = 30 * time.Second
	// DefaultPollInterval is the pause between two evaluations of a waited
	// expression.
	DefaultPollInterval = 100 * time.Millisecond
)

var _ api.Tab = &Tab{}

// Tab is a browser tab attached through a flat session.
type Tab struct {
	client *cdp.Client
	logger *log.Logger
	tracer *trace.Tracer

	targetID  string
	sessionID string

	navigationTimeout time.Duration
	pollInterval      time.Duration
}

func newTab(client *cdp.Client, logger *log.Logger, tracer *trace.Tracer, targetID, sessionID string) *Tab {
	return &Tab{
		client:            client,
		logger:            logger,
		tracer:            tracer,
		targetID:          targetID,
		sessionID:         sessionID,
		navigationTimeout: DefaultNavigationTimeout,
		pollInterval:      DefaultPollInterval,
	}
}

func (t *Tab) sessionCtx(ctx context.Context) context.Context {
	return cdp.WithSessionID(ctx, t.sessionID)
}

// Navigate loads url and waits for its load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	ctx, span := t.tracer.TraceNavigation(ctx, t.targetID, url)

	err := t.navigate(ctx, url)
	trace.RecordError(span, err)

	return err
}

func (t *Tab) navigate(ctx context.Context, url string) error {
	t.logger.Debugf("tab:navigate", "tid:%s url:%q", t.targetID, url)

	sctx := t.sessionCtx(ctx)
	loaded, unsubscribe := t.client.Subscribe(sctx, cdproto.EventPageLoadEventFired)
	defer unsubscribe()

	if _, err := t.client.Page.Navigate(sctx, url); err != nil {
		return err //nolint:wrapcheck
	}

	timer := time.NewTimer(t.navigationTimeout)
	defer timer.Stop()

	select {
	case <-loaded:
		return nil
	case <-timer.C:
		return &errext.TimeoutError{Op: "Navigate", Expression: url, Timeout: t.navigationTimeout}
	case <-ctx.Done():
		return fmt.Errorf("navigating to %q: %w", url, ctx.Err())
	}
}

// ExecuteJavaScript runs code as the body of a function in the page.
func (t *Tab) ExecuteJavaScript(ctx context.Context, code string) error {
	_, err := t.EvaluateJavaScript(ctx, fmt.Sprintf("(function() {\n%s\n})()", code))
	return err
}

// EvaluateJavaScript returns the JSON encoding of expr's value.
func (t *Tab) EvaluateJavaScript(ctx context.Context, expr string) ([]byte, error) {
	ctx, span := t.tracer.TraceAPICall(ctx, t.targetID, "tab.evaluate")
	defer span.End()

	v, err := t.client.Runtime.Evaluate(t.sessionCtx(ctx), expr)
	trace.RecordError(span, err)

	return v, err //nolint:wrapcheck
}

// WaitForJavaScriptExpression evaluates expr every poll interval until it is
// truthy. Evaluation errors are returned at once.
func (t *Tab) WaitForJavaScriptExpression(ctx context.Context, expr string, timeout time.Duration) error {
	ctx, span := t.tracer.TraceAPICall(ctx, t.targetID, "tab.wait_for_expression",
		oteltrace.WithAttributes(attribute.String("expression", expr)))
	defer span.End()

	err := t.waitFor(ctx, expr, timeout)
	trace.RecordError(span, err)

	return err
}

func (t *Tab) waitFor(ctx context.Context, expr string, timeout time.Duration) error {
	timeoutErr := &errext.TimeoutError{Op: "WaitForJavaScriptExpression", Expression: expr, Timeout: timeout}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	cond := fmt.Sprintf("!!(%s)", expr)
	for {
		v, err := t.client.Runtime.Evaluate(t.sessionCtx(wctx), cond)
		switch {
		case err == nil && string(v) == "true":
			return nil
		case err != nil && ctx.Err() == nil && errors.Is(wctx.Err(), context.DeadlineExceeded):
			return timeoutErr
		case err != nil:
			return err //nolint:wrapcheck
		}

		select {
		case <-ticker.C:
		case <-wctx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for %q: %w", expr, ctx.Err())
			}
			return timeoutErr
		}
	}
}

// Close closes the tab.
func (t *Tab) Close(ctx context.Context) error {
	t.tracer.EndTarget(t.targetID)
	if err := t.client.Target.CloseTarget(ctx, t.targetID); err != nil {
		return fmt.Errorf("closing tab %s: %w", t.targetID, err)
	}
	return nil
}
