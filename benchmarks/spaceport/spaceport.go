// Package spaceport runs spaceport.io's PerfMarks benchmark.
package spaceport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/benchmark"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/pageset"
	"github.com/browserbench/browserbench/trace"
)

const (
	// Name is the name the benchmark is registered as.
	Name = "spaceport"

	// NumTests is the number of results PerfMarks reports.
	NumTests = 24

	// Units of every reported value.
	Units = "objects (bigger is better)"

	// ScoreTrace is the trace of the list holding every result.
	ScoreTrace = "Score"

	startButtonID = "start-performance-tests"

	readyTimeout = 60 * time.Second
	pollTimeout  = 180 * time.Second
)

var readyExpr = fmt.Sprintf("!document.getElementById(%q).disabled", startButtonID)

func init() {
	benchmark.Register(&benchmark.Test{
		Name:        Name,
		Description: "spaceport.io's PerfMarks benchmark.",
		NewMeasurement: func(logger *log.Logger, tracer *trace.Tracer) api.PageMeasurement {
			return NewMeasurement(logger, tracer)
		},
		Enabled:       enabledOn,
		CreatePageSet: createPageSet,
	})
}

// enabledOn reports whether the benchmark runs on goos. It frequently times
// out on Windows.
func enabledOn(goos string) bool {
	return goos != "darwin" && goos != "windows"
}

func createPageSet(opts *benchmark.Options) (*pageset.PageSet, error) {
	if opts.ChromiumSrcDir == "" {
		return nil, errors.New("chromium source directory is not set")
	}
	dir := filepath.Join(opts.ChromiumSrcDir, "chrome", "test", "data", "third_party", "spaceport")

	return pageset.New(dir, pageset.Page{
		URL:                "file://index.html",
		RequiredElementIDs: []string{startButtonID},
	}), nil
}

// Measurement starts PerfMarks and collects its results from the console.
type Measurement struct {
	logger *log.Logger
	tracer *trace.Tracer
}

var _ api.PageMeasurement = &Measurement{}

// NewMeasurement returns a PerfMarks measurement. A nil tracer disables
// tracing.
func NewMeasurement(logger *log.Logger, tracer *trace.Tracer) *Measurement {
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}
	return &Measurement{logger: logger, tracer: tracer}
}

// CustomizeBrowserOptions disables vsync so frame rates are not capped.
func (m *Measurement) CustomizeBrowserOptions(opts api.BrowserOptions) {
	opts.AppendExtraBrowserArgs("--disable-gpu-vsync")
}

// MeasurePage waits for PerfMarks to be ready, runs all of its tests and
// reports one value per test plus the Score list. Nothing is reported unless
// every test completed.
func (m *Measurement) MeasurePage(ctx context.Context, _ *pageset.Page, tab api.Tab, res api.PageResults) error {
	if err := m.waitReady(ctx, tab); err != nil {
		return err
	}

	c := newCollector()
	script, err := c.interceptor()
	if err != nil {
		return err
	}
	if err := tab.ExecuteJavaScript(ctx, script); err != nil {
		return fmt.Errorf("starting performance tests: %w", err)
	}

	if err := m.poll(ctx, tab, c); err != nil {
		return err
	}

	raw, err := tab.EvaluateJavaScript(ctx, c.stringifyExpr())
	if err != nil {
		return fmt.Errorf("reading results: %w", err)
	}
	results, err := parseStringified(raw)
	if err != nil {
		return err
	}

	return report(results, res)
}

func (m *Measurement) waitReady(ctx context.Context, tab api.Tab) error {
	ctx, span := m.tracer.Start(ctx, "spaceport.wait_ready")
	defer span.End()

	if err := tab.WaitForJavaScriptExpression(ctx, readyExpr, readyTimeout); err != nil {
		err = fmt.Errorf("waiting for the start button: %w", err)
		trace.RecordError(span, err)
		return err
	}
	return nil
}

func (m *Measurement) poll(ctx context.Context, tab api.Tab, c *collector) error {
	ctx, span := m.tracer.Start(ctx, "spaceport.poll")
	defer span.End()

	n := 0
	for n < NumTests {
		if err := tab.WaitForJavaScriptExpression(ctx, c.countAboveExpr(n), pollTimeout); err != nil {
			err = fmt.Errorf("waiting for test %d of %d: %w", n+1, NumTests, err)
			trace.RecordError(span, err)
			return err
		}

		raw, err := tab.EvaluateJavaScript(ctx, c.countExpr())
		if err != nil {
			err = fmt.Errorf("reading result count: %w", err)
			trace.RecordError(span, err)
			return err
		}
		if n, err = parseCount(raw); err != nil {
			trace.RecordError(span, err)
			return err
		}

		m.logger.Infof("spaceport", "Completed test %d of %d", n, NumTests)
		span.AddEvent("test completed", oteltrace.WithAttributes(attribute.Int("count", n)))
	}

	return nil
}

func report(results []result, res api.PageResults) error {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if err := res.Add(r.trace, Units, r.value, r.chart, api.DataTypeUnimportant); err != nil {
			return fmt.Errorf("reporting %s.%s: %w", r.chart, r.trace, err)
		}
		scores = append(scores, r.value)
	}
	if err := res.AddList(ScoreTrace, Units, scores, "", api.DataTypeDefault); err != nil {
		return fmt.Errorf("reporting %s: %w", ScoreTrace, err)
	}
	return nil
}
