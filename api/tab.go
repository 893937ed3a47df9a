// Package api holds the interfaces shared between page measurements and the
// harness that runs them.
package api

import (
	"context"
	"time"
)

// Tab is a controllable browser page.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	ExecuteJavaScript(ctx context.Context, code string) error
	// EvaluateJavaScript returns the JSON encoding of the expression's value.
	EvaluateJavaScript(ctx context.Context, expr string) ([]byte, error)
	// WaitForJavaScriptExpression blocks until expr is truthy in the page or
	// returns an error matching errext.ErrTimeout once timeout has elapsed.
	WaitForJavaScriptExpression(ctx context.Context, expr string, timeout time.Duration) error
	Close(ctx context.Context) error
}
