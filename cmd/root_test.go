package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browserbench/browserbench/env"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/jsvm"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/trace"
)

const (
	testChromiumSrc    = "/src"
	testSpaceportIndex = "/src/chrome/test/data/third_party/spaceport/index.html"
	testWSURL          = "ws://127.0.0.1:9222/devtools/browser/test"
)

// perfMarksScript logs the 24 results as soon as the start button is clicked.
const perfMarksScript = `
var charts = ["Rotation", "Scale", "Translate", "Alpha"];
var traces = ["Sprites", "Canvas", "CSS", "WebGL", "DOM", "Images"];
document.getElementById("start-performance-tests").onclick = function () {
	for (var i = 0; i < 24; i++) {
		var key = charts[Math.floor(i / 6)] + "." + traces[i % 6];
		setTimeout(console.log.bind(console, key + ": " + (i + 1)), (i + 1) * 1000);
	}
};
`

type testState struct {
	*globalState
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	env    map[string]string

	connectedTo string
}

func newTestState(t *testing.T) *testState {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testSpaceportIndex,
		[]byte(`<html><body><button id="start-performance-tests">Start</button></body></html>`), 0o644))

	ts := &testState{
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
		env:    map[string]string{},
	}
	logger := logrus.New()
	logger.SetOutput(ts.stderr)

	ts.globalState = &globalState{
		ctx:       context.Background(),
		fs:        fs,
		stdout:    ts.stdout,
		stderr:    ts.stderr,
		lookupEnv: env.MapLookup(ts.env),
		goos:      "linux",
		logger:    logger,
		connect: func(_ context.Context, wsURL string, logger *log.Logger, _ *trace.Tracer) (browser, error) {
			ts.connectedTo = wsURL
			return jsvm.NewBrowser(logger, func(p *jsvm.Page, _ string) error {
				if err := p.AddElement("start-performance-tests", false); err != nil {
					return err
				}
				return p.RunScript("perfmarks.js", perfMarksScript)
			}), nil
		},
	}

	return ts
}

func TestList(t *testing.T) {
	t.Parallel()

	ts := newTestState(t)
	require.Equal(t, 0, execute(ts.globalState, []string{"list"}))
	assert.Contains(t, ts.stdout.String(), "NAME")
	assert.Regexp(t, `spaceport\s+true\s+spaceport.io's PerfMarks benchmark.`, ts.stdout.String())

	ts = newTestState(t)
	ts.goos = "windows"
	require.Equal(t, 0, execute(ts.globalState, []string{"list"}))
	assert.Regexp(t, `spaceport\s+false`, ts.stdout.String())
}

func TestFlags(t *testing.T) {
	t.Parallel()

	ts := newTestState(t)
	require.Equal(t, 0, execute(ts.globalState, []string{"flags", "spaceport"}))

	lines := strings.Split(strings.TrimSpace(ts.stdout.String()), "\n")
	assert.Contains(t, lines, "--disable-gpu-vsync")

	ts = newTestState(t)
	assert.Equal(t, int(exitcodes.InvalidConfig), execute(ts.globalState, []string{"flags", "octane"}))
	assert.Contains(t, ts.stderr.String(), "unknown benchmark")
}

func TestRun(t *testing.T) {
	t.Parallel()

	ts := newTestState(t)
	ts.env[env.ChromiumSrcDir] = testChromiumSrc

	code := execute(ts.globalState, []string{
		"run", "spaceport",
		"--ws-url", testWSURL,
		"--summary-file", "/out/summary.txt",
	})
	require.Equal(t, 0, code, ts.stderr.String())
	assert.Equal(t, testWSURL, ts.connectedTo)

	out := ts.stdout.String()
	assert.Contains(t, out, "1 page(s) measured, 0 failed")
	assert.Contains(t, out, "Rotation.Sprites")
	assert.Contains(t, out, "Score: n=24 min=1 avg=12.5")

	summary, err := afero.ReadFile(ts.fs, "/out/summary.txt")
	require.NoError(t, err)
	assert.Contains(t, string(summary), "1 page(s) measured, 0 failed")
	assert.Contains(t, string(summary), "Score: n=24 min=1 avg=12.5")
}

// Toggles the global color switch, so it must not run in parallel.
func TestRunSummaryFileIsPlain(t *testing.T) { //nolint:paralleltest
	noColor := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = noColor })

	ts := newTestState(t)
	ts.env[env.ChromiumSrcDir] = testChromiumSrc

	code := execute(ts.globalState, []string{
		"run", "spaceport",
		"--ws-url", testWSURL,
		"--summary-file", "/out/summary.txt",
	})
	require.Equal(t, 0, code, ts.stderr.String())
	assert.Contains(t, ts.stdout.String(), "\x1b[")

	summary, err := afero.ReadFile(ts.fs, "/out/summary.txt")
	require.NoError(t, err)
	assert.NotContains(t, string(summary), "\x1b[")
	assert.Contains(t, string(summary), "pages: 1 page(s) measured, 0 failed")
	assert.Contains(t, string(summary), "Score: n=24 min=1 avg=12.5")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		goos  string
		setup func(ts *testState)
		code  int
	}{
		{
			name: "missing_ws_url",
			args: []string{"run", "spaceport", "--chromium-src", testChromiumSrc},
			code: int(exitcodes.InvalidConfig),
		},
		{
			name: "bad_ws_url",
			args: []string{"run", "spaceport", "--chromium-src", testChromiumSrc, "--ws-url", "http://127.0.0.1:9222"},
			code: int(exitcodes.InvalidConfig),
		},
		{
			name: "bad_log_level",
			args: []string{"run", "spaceport", "--ws-url", testWSURL, "--log-level", "loud"},
			code: int(exitcodes.InvalidConfig),
		},
		{
			name: "missing_page",
			args: []string{"run", "spaceport", "--ws-url", testWSURL, "--chromium-src", "/elsewhere"},
			code: int(exitcodes.InvalidConfig),
		},
		{
			name: "disabled",
			args: []string{"run", "spaceport", "--ws-url", testWSURL, "--chromium-src", testChromiumSrc},
			goos: "darwin",
			code: int(exitcodes.TestDisabled),
		},
		{
			name: "connect_failure",
			args: []string{"run", "spaceport", "--ws-url", testWSURL, "--chromium-src", testChromiumSrc},
			setup: func(ts *testState) {
				ts.connect = func(context.Context, string, *log.Logger, *trace.Tracer) (browser, error) {
					return nil, errors.New("connection refused")
				}
			},
			code: -1,
		},
		{
			name: "timeout",
			args: []string{"run", "spaceport", "--ws-url", testWSURL, "--chromium-src", testChromiumSrc},
			setup: func(ts *testState) {
				ts.connect = func(_ context.Context, _ string, logger *log.Logger, _ *trace.Tracer) (browser, error) {
					return jsvm.NewBrowser(logger, func(p *jsvm.Page, _ string) error {
						return p.AddElement("start-performance-tests", true)
					}), nil
				}
			},
			code: int(exitcodes.BenchmarkTimeout),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestState(t)
			if tt.goos != "" {
				ts.goos = tt.goos
			}
			if tt.setup != nil {
				tt.setup(ts)
			}

			assert.Equal(t, tt.code, execute(ts.globalState, tt.args), ts.stderr.String())
		})
	}
}

func TestRunForceDisabled(t *testing.T) {
	t.Parallel()

	ts := newTestState(t)
	ts.goos = "windows"
	ts.env[env.Force] = "true"

	code := execute(ts.globalState, []string{
		"run", "spaceport", "--ws-url", testWSURL, "--chromium-src", testChromiumSrc,
	})
	require.Equal(t, 0, code, ts.stderr.String())
	assert.Contains(t, ts.stdout.String(), "1 page(s) measured")
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	ts := newTestState(t)
	require.NoError(t, afero.WriteFile(ts.fs, "/browserbench.yaml", []byte(
		"ws_url: "+testWSURL+"\nchromium_src: "+testChromiumSrc+"\n"), 0o644))

	code := execute(ts.globalState, []string{"run", "spaceport", "--config", "/browserbench.yaml"})
	require.Equal(t, 0, code, ts.stderr.String())
	assert.Equal(t, testWSURL, ts.connectedTo)

	ts = newTestState(t)
	code = execute(ts.globalState, []string{"list", "--config", "/missing.yaml"})
	assert.Equal(t, int(exitcodes.InvalidConfig), code)
}
