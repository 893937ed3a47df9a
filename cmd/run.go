package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	k6metrics "go.k6.io/k6/metrics"

	"github.com/browserbench/browserbench/benchmark"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/k6ext"
	"github.com/browserbench/browserbench/otel"
	"github.com/browserbench/browserbench/results"
	"github.com/browserbench/browserbench/storage"
	"github.com/browserbench/browserbench/trace"
)

const traceShutdownTimeout = 5 * time.Second

type cmdRun struct {
	root *rootCommand
}

func getRunCmd(root *rootCommand) *cobra.Command {
	c := &cmdRun{root: root}

	runCmd := &cobra.Command{
		Use:   "run <benchmark>",
		Short: "Run a benchmark in a running browser",
		Example: `  # Start the browser with the benchmark flags, then run it.
  chromium $(browserbench flags spaceport) &
  browserbench run spaceport --ws-url ws://127.0.0.1:9222/devtools/browser/<id> --chromium-src ~/chromium/src`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	runCmd.Flags().AddFlagSet(c.flagSet())

	return runCmd
}

func (c *cmdRun) flagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.String("ws-url", "", "DevTools websocket URL of the browser")
	flags.String("chromium-src", "", "root of the Chromium checkout holding the benchmark pages")
	flags.Bool("force", false, "run the benchmark even if it is disabled on this platform")
	flags.String("summary-file", "", "write the results summary to this file")
	flags.String("traces-endpoint", "", "OTLP HTTP endpoint to export traces to")
	must(cobra.MarkFlagDirname(flags, "chromium-src"))

	return flags
}

func (c *cmdRun) run(cmd *cobra.Command, args []string) (err error) {
	gs, cfg, logger := c.root.gs, c.root.cfg, c.root.logger
	ctx := cmd.Context()

	t, err := lookupTest(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	tp, err := newTraceProvider(ctx, cfg.TracesEndpoint.String, cfg.TracesProto.String, cfg.TracesInsecure.Bool)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), traceShutdownTimeout)
		defer cancel()
		if serr := tp.Shutdown(sctx); serr != nil {
			logger.Warnf("run", "shutting down trace provider: %v", serr)
		}
	}()
	tracer := trace.NewTracer(logger, tp, map[string]string{"benchmark": t.Name})

	b, err := gs.connect(ctx, cfg.WSURL.String, logger, tracer)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.Warnf("run", "closing browser connection: %v", cerr)
		}
	}()
	logger.Infof("run", "running %s in %s", t.Name, b.Version())

	runner := benchmark.NewRunner(&benchmark.Options{
		ChromiumSrcDir: cfg.ChromiumSrcDir.String,
		Force:          cfg.Force.Bool,
		GOOS:           gs.goos,
		Fs:             gs.fs,
	}, logger, tracer)

	set, runErr := runner.Run(ctx, t, b)
	if set == nil {
		return runErr
	}
	if err := c.report(ctx, cmd.OutOrStdout(), set); err != nil {
		if runErr == nil {
			return err
		}
		logger.Errorf("run", "reporting results: %v", err)
	}

	return runErr
}

// report prints the summary and the Score stats and persists the summary.
// The persisted copy is always plain text.
func (c *cmdRun) report(ctx context.Context, w io.Writer, set *results.Set) error {
	cfg := c.root.cfg

	registry := k6metrics.NewRegistry()
	cm := k6ext.RegisterCustomMetrics(registry)
	collector := k6ext.NewCollector(cm.PerfMarksScore)
	k6ext.PushIfNotDone(ctx, collector.Samples(), k6ext.Samples(cm, registry, set, time.Now()))
	stats := collector.Stop()

	out, err := renderSummary(set, stats, false)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("printing summary: %w", err)
	}

	if !cfg.SummaryFile.Valid || cfg.SummaryFile.String == "" {
		return nil
	}
	plain, err := renderSummary(set, stats, true)
	if err != nil {
		return err
	}
	p := &storage.LocalFilePersister{Fs: c.root.gs.fs}
	if err := p.Persist(ctx, cfg.SummaryFile.String, bytes.NewReader(plain)); err != nil {
		return fmt.Errorf("persisting summary: %w", err)
	}
	c.root.logger.Infof("run", "summary written to %s", cfg.SummaryFile.String)

	return nil
}

func renderSummary(set *results.Set, stats k6ext.Stats, noColor bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := set.PrintSummary(&buf, noColor); err != nil {
		return nil, fmt.Errorf("rendering summary: %w", err)
	}
	if stats.Count > 0 {
		fprintf(&buf, "Score: n=%d min=%.4g avg=%.4g med=%.4g p(90)=%.4g max=%.4g\n",
			stats.Count, stats.Min, stats.Avg, stats.Med, stats.P90, stats.Max)
	}
	return buf.Bytes(), nil
}

func newTraceProvider(ctx context.Context, endpoint, proto string, insecure bool) (otel.TraceProvider, error) {
	if endpoint == "" {
		return otel.NewNoopTraceProvider(), nil
	}
	tp, err := otel.NewTraceProvider(ctx, proto, endpoint, insecure)
	if err != nil {
		return nil, fmt.Errorf("creating trace provider: %w", err)
	}
	return tp, nil
}

func lookupTest(name string) (*benchmark.Test, error) {
	t, ok := benchmark.Get(name)
	if !ok {
		return nil, errext.WithExitCodeIfNone(
			fmt.Errorf("unknown benchmark %q, see \"browserbench list\"", name), exitcodes.InvalidConfig)
	}
	return t, nil
}
