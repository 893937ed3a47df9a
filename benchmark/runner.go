package benchmark

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/pageset"
	"github.com/browserbench/browserbench/results"
	"github.com/browserbench/browserbench/trace"
)

// ErrDisabled is returned when running a test that is disabled on this
// platform without forcing it.
var ErrDisabled = errors.New("test disabled on this platform")

// Browser opens the tabs pages are measured in.
type Browser interface {
	NewTab(ctx context.Context) (api.Tab, error)
}

// Runner runs tests page by page.
type Runner struct {
	opts   *Options
	logger *log.Logger
	tracer *trace.Tracer
}

// NewRunner returns a Runner. A nil tracer disables tracing.
func NewRunner(opts *Options, logger *log.Logger, tracer *trace.Tracer) *Runner {
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}
	return &Runner{opts: opts, logger: logger, tracer: tracer}
}

// Run measures every page of t in its own tab of b. Pages are measured in
// order; a failed page is recorded in the returned set without any of its
// values and the run goes on with the next page.
func (r *Runner) Run(ctx context.Context, t *Test, b Browser) (*results.Set, error) {
	goos := r.opts.goos()
	if !t.IsEnabled(goos) {
		if !r.opts.Force {
			return nil, errext.WithExitCodeIfNone(
				fmt.Errorf("%w: %s on %s", ErrDisabled, t.Name, goos), exitcodes.TestDisabled)
		}
		r.logger.Warnf("benchmark", "running %s although it is disabled on %s", t.Name, goos)
	}

	ps, err := t.CreatePageSet(r.opts)
	if err != nil {
		return nil, errext.WithExitCodeIfNone(
			fmt.Errorf("creating page set of %s: %w", t.Name, err), exitcodes.InvalidConfig)
	}
	if err := ps.Validate(r.opts.fs()); err != nil {
		return nil, errext.WithExitCodeIfNone(
			fmt.Errorf("page set of %s: %w", t.Name, err), exitcodes.InvalidConfig)
	}

	ctx, span := r.tracer.Start(ctx, "benchmark.run",
		oteltrace.WithAttributes(attribute.String("test", t.Name)))
	defer span.End()

	m := t.NewMeasurement(r.logger, r.tracer)
	set := results.NewSet()
	for _, page := range ps.Pages {
		if err := r.measurePage(ctx, m, page, b, set); err != nil {
			r.logger.Errorf("benchmark", "page %s failed: %v", page.DisplayName(), err)
			set.AddFailure(page, err)
		}
	}

	failures := set.Failures()
	if len(failures) == 0 {
		return set, nil
	}

	first := failures[0].Err
	code := exitcodes.BenchmarkFailed
	if errors.Is(first, errext.ErrTimeout) {
		code = exitcodes.BenchmarkTimeout
	}
	err = fmt.Errorf("%s: %d of %d page(s) failed: %w", t.Name, len(failures), len(ps.Pages), first)
	trace.RecordError(span, err)

	return set, errext.WithExitCodeIfNone(err, code)
}

func (r *Runner) measurePage(
	ctx context.Context, m api.PageMeasurement, page *pageset.Page, b Browser, set *results.Set,
) (err error) {
	ctx, span := r.tracer.Start(ctx, "page.measure",
		oteltrace.WithAttributes(attribute.String("page", page.DisplayName())))
	defer func() {
		trace.RecordError(span, err)
		span.End()
	}()

	tab, err := b.NewTab(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer func() {
		if cerr := tab.Close(context.WithoutCancel(ctx)); cerr != nil {
			r.logger.Warnf("benchmark", "closing tab of %s: %v", page.DisplayName(), cerr)
		}
	}()

	url := page.ResolvedURL()
	r.logger.Infof("benchmark", "measuring %s", url)
	if err := tab.Navigate(ctx, url); err != nil {
		return err //nolint:wrapcheck
	}

	pr := set.WillMeasurePage(page)
	if err := m.MeasurePage(ctx, page, tab, pr); err != nil {
		return err //nolint:wrapcheck
	}
	set.DidMeasurePage(pr)

	return nil
}
