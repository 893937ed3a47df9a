package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpt "github.com/chromedp/cdproto/target"
)

// Target exposes the CDP Target domain actions.
type Target interface {
	CreateTarget(ctx context.Context, url string) (targetID string, err error)
	AttachToTarget(ctx context.Context, targetID string) (sessionID string, err error)
	CloseTarget(ctx context.Context, targetID string) error
}

var _ Target = &target{}

type target struct {
	exec cdp.Executor
}

// NewTarget returns a new CDP Target domain wrapper.
func NewTarget(exec cdp.Executor) Target {
	return &target{exec}
}

func (t *target) CreateTarget(ctx context.Context, url string) (string, error) {
	action := cdpt.CreateTarget(url)
	id, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("creating target: %w", err)
	}

	return string(id), nil
}

// AttachToTarget attaches to the target in flat mode so that its commands
// share the browser connection.
func (t *target) AttachToTarget(ctx context.Context, targetID string) (string, error) {
	action := cdpt.AttachToTarget(cdpt.ID(targetID)).WithFlatten(true)
	sid, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("attaching to target %q: %w", targetID, err)
	}

	return string(sid), nil
}

func (t *target) CloseTarget(ctx context.Context, targetID string) error {
	params := cdpt.CloseTarget(cdpt.ID(targetID))
	if err := t.exec.Execute(ctx, cdpt.CommandCloseTarget, params, nil); err != nil {
		return fmt.Errorf("closing target %q: %w", targetID, err)
	}

	return nil
}
