// Package cmd implements the browserbench command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/browserbench/browserbench/benchmark"
	"github.com/browserbench/browserbench/chromium"
	"github.com/browserbench/browserbench/config"
	"github.com/browserbench/browserbench/env"
	"github.com/browserbench/browserbench/errext"
	"github.com/browserbench/browserbench/errext/exitcodes"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/trace"

	// Benchmarks register themselves on import.
	_ "github.com/browserbench/browserbench/benchmarks/spaceport"
)

var bannerColor = color.New(color.FgCyan)

// browser is a connection to the browser benchmarks run in.
type browser interface {
	benchmark.Browser
	Version() string
	Close() error
}

type connectFunc func(ctx context.Context, wsURL string, logger *log.Logger, tracer *trace.Tracer) (browser, error)

func connectChromium(ctx context.Context, wsURL string, logger *log.Logger, tracer *trace.Tracer) (browser, error) {
	b, err := chromium.Connect(ctx, wsURL, logger, chromium.WithTracer(tracer))
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return b, nil
}

// globalState holds everything the commands touch outside of the process, so
// tests can replace it.
type globalState struct {
	ctx       context.Context
	fs        afero.Fs
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv env.LookupFunc
	goos      string
	logger    *logrus.Logger
	connect   connectFunc
}

func newGlobalState(ctx context.Context) *globalState {
	return &globalState{
		ctx:       ctx,
		fs:        afero.NewOsFs(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: env.Lookup,
		goos:      runtime.GOOS,
		logger: &logrus.Logger{
			Out:       os.Stderr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
		connect: connectChromium,
	}
}

// This is to keep all fields needed for the root browserbench command.
type rootCommand struct {
	gs     *globalState
	cmd    *cobra.Command
	logger *log.Logger

	configPath string
	cfg        config.Config
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{
		gs:     gs,
		logger: log.New(gs.logger, nil),
	}
	c.cmd = &cobra.Command{
		Use:               "browserbench",
		Short:             "runs in-page browser benchmarks over the DevTools protocol",
		Long:              bannerColor.Sprint("\nbrowserbench runs in-page browser benchmarks over the DevTools protocol."),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.SetOut(gs.stdout)
	c.cmd.SetErr(gs.stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.rootCmdPersistentFlagSet())

	c.cmd.AddCommand(
		getListCmd(c),
		getFlagsCmd(c),
		getRunCmd(c),
	)

	return c
}

func (c *rootCommand) rootCmdPersistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	flags.String("log-level", "info", "log level: trace, debug, info, warning or error")
	flags.String("log-category-filter", "", "only log the categories matching this regexp")
	must(cobra.MarkFlagFilename(flags, "config", "yaml", "yml"))

	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Consolidate(c.gs.fs, c.configPath, c.gs.lookupEnv, flagConfig(cmd.Flags()))
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	c.cfg = cfg

	if err := c.logger.SetLevel(cfg.LogLevel.String); err != nil {
		return errext.WithExitCodeIfNone(fmt.Errorf("invalid log level: %w", err), exitcodes.InvalidConfig)
	}
	if err := c.logger.SetCategoryFilter(cfg.LogCategoryFilter.String); err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	return nil
}

// flagConfig returns the config set by the flags the user changed.
func flagConfig(flags *pflag.FlagSet) config.Config {
	return config.Config{
		WSURL:             getNullString(flags, "ws-url"),
		ChromiumSrcDir:    getNullString(flags, "chromium-src"),
		LogLevel:          getNullString(flags, "log-level"),
		LogCategoryFilter: getNullString(flags, "log-category-filter"),
		Force:             getNullBool(flags, "force"),
		SummaryFile:       getNullString(flags, "summary-file"),
		TracesEndpoint:    getNullString(flags, "traces-endpoint"),
	}
}

// Execute runs the command line and exits with the exit code of its error.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(newGlobalState(ctx), os.Args[1:])
	cancel()

	os.Exit(code)
}

func execute(gs *globalState, args []string) int {
	c := newRootCommand(gs)
	c.cmd.SetArgs(args)

	if err := c.cmd.ExecuteContext(gs.ctx); err != nil {
		code := -1
		var ecerr errext.HasExitCode
		if errors.As(err, &ecerr) {
			code = int(ecerr.ExitCode())
		}
		gs.logger.WithField("exit_code", code).Error(err)

		return code
	}

	return 0
}
