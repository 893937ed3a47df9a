package chromium

import (
	"fmt"
	"strings"

	"github.com/browserbench/browserbench/api"
)

var _ api.BrowserOptions = &Options{}

// defaultArgs are the flags every benchmarked browser is started with.
var defaultArgs = []string{
	"--no-first-run",
	"--no-default-browser-check",
	"--remote-debugging-port=9222",
}

// Options holds the command line flags a browser should be launched with.
type Options struct {
	extraArgs []string
}

// NewOptions returns options holding no extra args.
func NewOptions() *Options {
	return &Options{}
}

// AppendExtraBrowserArgs appends args, skipping the ones already present.
func (o *Options) AppendExtraBrowserArgs(args ...string) {
	for _, arg := range args {
		if o.has(arg) {
			continue
		}
		o.extraArgs = append(o.extraArgs, arg)
	}
}

// ExtraBrowserArgs returns the args appended so far.
func (o *Options) ExtraBrowserArgs() []string {
	return append([]string(nil), o.extraArgs...)
}

// Args returns the default args followed by the extra args.
func (o *Options) Args() []string {
	args := make([]string, 0, len(defaultArgs)+len(o.extraArgs))
	args = append(args, defaultArgs...)
	for _, arg := range o.extraArgs {
		if !contains(defaultArgs, arg) {
			args = append(args, arg)
		}
	}
	return args
}

// Validate returns an error if one of the extra args is not a flag.
func (o *Options) Validate() error {
	for _, arg := range o.extraArgs {
		if !strings.HasPrefix(arg, "--") {
			return fmt.Errorf("invalid browser arg %q: must start with --", arg)
		}
	}
	return nil
}

func (o *Options) has(arg string) bool {
	return contains(o.extraArgs, arg)
}

func contains(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}
