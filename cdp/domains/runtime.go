package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpr "github.com/chromedp/cdproto/runtime"
)

// Runtime exposes the CDP Runtime domain actions.
type Runtime interface {
	Enable(context.Context) error
	// Evaluate evaluates expr in the page and returns the JSON encoding of
	// its value. An undefined value is returned as null.
	Evaluate(ctx context.Context, expr string) ([]byte, error)
}

var _ Runtime = &runtime{}

type runtime struct {
	exec cdp.Executor
}

// NewRuntime returns a new CDP Runtime domain wrapper.
func NewRuntime(exec cdp.Executor) Runtime {
	return &runtime{exec}
}

func (r *runtime) Enable(ctx context.Context) error {
	action := cdpr.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, r.exec)); err != nil {
		return fmt.Errorf("enabling runtime CDP domain: %w", err)
	}

	return nil
}

func (r *runtime) Evaluate(ctx context.Context, expr string) ([]byte, error) {
	action := cdpr.Evaluate(expr).
		WithReturnByValue(true).
		WithAwaitPromise(true)

	res, exc, err := action.Do(cdp.WithExecutor(ctx, r.exec))
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	if exc != nil {
		return nil, fmt.Errorf("evaluating expression: %w", exc)
	}
	if res == nil || len(res.Value) == 0 {
		return []byte("null"), nil
	}

	return []byte(res.Value), nil
}
