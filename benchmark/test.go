// Package benchmark registers benchmarks and runs them against a browser.
package benchmark

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/browserbench/browserbench/api"
	"github.com/browserbench/browserbench/chromium"
	"github.com/browserbench/browserbench/log"
	"github.com/browserbench/browserbench/pageset"
	"github.com/browserbench/browserbench/trace"
)

// Options are the run options a test builds its page set from.
type Options struct {
	// ChromiumSrcDir is the root of a Chromium checkout holding the
	// benchmark pages.
	ChromiumSrcDir string
	// Force runs tests that are disabled on this platform.
	Force bool
	// GOOS overrides runtime.GOOS when deciding whether a test is enabled.
	GOOS string
	// Fs is the file system page sets are validated against.
	Fs afero.Fs
}

func (o *Options) goos() string {
	if o.GOOS != "" {
		return o.GOOS
	}
	return runtime.GOOS
}

func (o *Options) fs() afero.Fs {
	if o.Fs != nil {
		return o.Fs
	}
	return afero.NewOsFs()
}

// Test is a page measurement together with the pages it measures.
type Test struct {
	Name        string
	Description string

	// NewMeasurement returns the measurement run on every page.
	NewMeasurement func(logger *log.Logger, tracer *trace.Tracer) api.PageMeasurement
	// Enabled reports whether the test runs on goos. A nil Enabled enables
	// the test everywhere.
	Enabled func(goos string) bool
	// CreatePageSet returns the pages to measure.
	CreatePageSet func(opts *Options) (*pageset.PageSet, error)
}

// IsEnabled reports whether t runs on goos.
func (t *Test) IsEnabled(goos string) bool {
	return t.Enabled == nil || t.Enabled(goos)
}

// BrowserArgs returns the flags the browser must be launched with for t.
func BrowserArgs(t *Test) []string {
	opts := chromium.NewOptions()
	t.NewMeasurement(nil, trace.NewNoopTracer()).CustomizeBrowserOptions(opts)
	return opts.Args()
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Test)
)

// Register makes t available by name. It panics if t has no name or a test
// with the same name is already registered.
func Register(t *Test) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if t.Name == "" {
		panic("benchmark: registering a test without a name")
	}
	if t.NewMeasurement == nil || t.CreatePageSet == nil {
		panic(fmt.Sprintf("benchmark: test %q is incomplete", t.Name))
	}
	if _, dup := registry[t.Name]; dup {
		panic(fmt.Sprintf("benchmark: test %q registered twice", t.Name))
	}
	registry[t.Name] = t
}

// Get returns the test registered as name.
func Get(name string) (*Test, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[name]
	return t, ok
}

// All returns the registered tests sorted by name.
func All() []*Test {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tests := make([]*Test, 0, len(registry))
	for _, t := range registry {
		tests = append(tests, t)
	}
	sort.Slice(tests, func(i, j int) bool {
		return tests[i].Name < tests[j].Name
	})
	return tests
}
