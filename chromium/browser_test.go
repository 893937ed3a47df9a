package chromium

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browserbench/browserbench/cdp/cdptest"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/log"
)

const testSessionID = "session-1"

func newTestServer(t *testing.T) *cdptest.Server {
	t.Helper()

	srv := cdptest.NewServer(t)
	srv.Handle("Browser.getVersion", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]string{"product": "HeadlessChrome/120.0.0.0", "userAgent": "Mozilla/5.0"}, nil
	})
	srv.Handle("Target.createTarget", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]string{"targetId": "target-1"}, nil
	})
	srv.Handle("Target.attachToTarget", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]string{"sessionId": testSessionID}, nil
	})
	srv.Handle("Page.navigate", func(req cdptest.Request, emit cdptest.Emitter) (any, *cdptest.Error) {
		emit(req.SessionID, "Page.loadEventFired", map[string]float64{"timestamp": 1})
		return map[string]string{"frameId": "frame-1", "loaderId": "loader-1"}, nil
	})

	return srv
}

func newTestTab(t *testing.T, srv *cdptest.Server) *Tab {
	t.Helper()

	b, err := Connect(context.Background(), srv.URL(), log.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	tab, err := b.NewTab(context.Background())
	require.NoError(t, err)

	ct, ok := tab.(*Tab)
	require.True(t, ok)
	ct.pollInterval = 5 * time.Millisecond

	return ct
}

func evaluateResult(v any) map[string]any {
	return map[string]any{"result": map[string]any{"type": "object", "value": v}}
}

func TestConnect(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	b, err := Connect(context.Background(), srv.URL(), log.NewNullLogger())
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	assert.Equal(t, "HeadlessChrome/120.0.0.0", b.Version())
	assert.Equal(t, "Mozilla/5.0", b.UserAgent())
}

func TestConnectError(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), "ws://127.0.0.1:1/devtools/browser/none", log.NewNullLogger())
	require.Error(t, err)

	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.Equal(t, exitcodes.BrowserConnect, ecerr.ExitCode())
}

func TestBrowserNewTab(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	tab := newTestTab(t, srv)

	assert.Equal(t, "target-1", tab.targetID)
	assert.Equal(t, testSessionID, tab.sessionID)
	assert.Equal(t, []string{
		"Browser.getVersion",
		"Target.createTarget",
		"Target.attachToTarget",
		"Page.enable",
		"Runtime.enable",
	}, srv.Methods())

	for _, req := range srv.Requests()[3:] {
		assert.Equal(t, testSessionID, req.SessionID, req.Method)
	}
}

func TestTabNavigate(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	tab := newTestTab(t, srv)

	require.NoError(t, tab.Navigate(context.Background(), "file:///src/index.html"))

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "Page.navigate", last.Method)
	assert.JSONEq(t, `{"url":"file:///src/index.html"}`, string(last.Params))
}

func TestTabNavigateErrorText(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.Handle("Page.navigate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]string{"frameId": "frame-1", "errorText": "net::ERR_FILE_NOT_FOUND"}, nil
	})
	tab := newTestTab(t, srv)

	err := tab.Navigate(context.Background(), "file:///missing.html")
	assert.ErrorContains(t, err, "net::ERR_FILE_NOT_FOUND")
}

func TestTabNavigateTimeout(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.Handle("Page.navigate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]string{"frameId": "frame-1"}, nil
	})
	tab := newTestTab(t, srv)
	tab.navigationTimeout = 20 * time.Millisecond

	err := tab.Navigate(context.Background(), "file:///slow.html")
	require.ErrorIs(t, err, errext.ErrTimeout)

	var terr *errext.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Navigate", terr.Op)
}

func TestTabEvaluateJavaScript(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.Handle("Runtime.evaluate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return evaluateResult(map[string]string{"Score.Total": "12"}), nil
	})
	tab := newTestTab(t, srv)

	v, err := tab.EvaluateJavaScript(context.Background(), "window.results")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Score.Total":"12"}`, string(v))

	require.NoError(t, tab.ExecuteJavaScript(context.Background(), "document.body.click();"))
	reqs := srv.Requests()
	assert.Contains(t, string(reqs[len(reqs)-1].Params), `(function() {\ndocument.body.click();\n})()`)
}

func TestTabWaitForJavaScriptExpression(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	var calls atomic.Int32
	srv.Handle("Runtime.evaluate", func(req cdptest.Request, _ cdptest.Emitter) (any, *cdptest.Error) {
		if !strings.Contains(string(req.Params), `!!(window.ready)`) {
			t.Errorf("unexpected expression: %s", req.Params)
		}
		return map[string]any{
			"result": map[string]any{"type": "boolean", "value": calls.Add(1) >= 3},
		}, nil
	})
	tab := newTestTab(t, srv)

	require.NoError(t, tab.WaitForJavaScriptExpression(context.Background(), "window.ready", time.Second))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTabWaitForJavaScriptExpressionTimeout(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.Handle("Runtime.evaluate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]any{"result": map[string]any{"type": "boolean", "value": false}}, nil
	})
	tab := newTestTab(t, srv)

	err := tab.WaitForJavaScriptExpression(context.Background(), "window.ready", 30*time.Millisecond)
	require.ErrorIs(t, err, errext.ErrTimeout)

	var terr *errext.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "WaitForJavaScriptExpression", terr.Op)
	assert.Equal(t, "window.ready", terr.Expression)
	assert.Equal(t, 30*time.Millisecond, terr.Timeout)
}

func TestTabWaitForJavaScriptExpressionError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	var calls atomic.Int32
	srv.Handle("Runtime.evaluate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		calls.Add(1)
		return map[string]any{
			"result": map[string]any{"type": "object", "subtype": "error"},
			"exceptionDetails": map[string]any{
				"exceptionId":  1,
				"text":         "Uncaught ReferenceError: foo is not defined",
				"lineNumber":   0,
				"columnNumber": 3,
			},
		}, nil
	})
	tab := newTestTab(t, srv)

	err := tab.WaitForJavaScriptExpression(context.Background(), "foo.bar", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errext.ErrTimeout)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTabWaitForJavaScriptExpressionCanceled(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	srv.Handle("Runtime.evaluate", func(cdptest.Request, cdptest.Emitter) (any, *cdptest.Error) {
		return map[string]any{"result": map[string]any{"type": "boolean", "value": false}}, nil
	})
	tab := newTestTab(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tab.WaitForJavaScriptExpression(ctx, "window.ready", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errext.ErrTimeout)
}

func TestTabClose(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	tab := newTestTab(t, srv)

	require.NoError(t, tab.Close(context.Background()))

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "Target.closeTarget", last.Method)
	assert.Empty(t, last.SessionID)
	assert.JSONEq(t, `{"targetId":"target-1"}`, string(last.Params))
}
