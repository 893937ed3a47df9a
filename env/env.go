// Package env holds the environment variables browserbench understands.
package env

import "os"

// LookupFunc defines a function to look up a key from the environment.
type LookupFunc func(key string) (string, bool)

// Lookup is the LookupFunc backed by the process environment.
func Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLookup is a LookupFunc that returns values from the given map.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

const (
	// WSURL is the CDP websocket URL of the browser to measure.
	WSURL = "BROWSERBENCH_WS_URL"

	// ChromiumSrcDir is the root of a Chromium checkout holding the page
	// fixtures.
	ChromiumSrcDir = "BROWSERBENCH_CHROMIUM_SRC"

	// LogLevel is the logrus level name used by the CLI.
	LogLevel = "BROWSERBENCH_LOG_LEVEL"

	// LogCategoryFilter is a regexp that log categories must match.
	LogCategoryFilter = "BROWSERBENCH_LOG_CATEGORY_FILTER"

	// Force runs tests that are disabled on this platform.
	Force = "BROWSERBENCH_FORCE"

	// SummaryFile is where the results summary is written to.
	SummaryFile = "BROWSERBENCH_SUMMARY_FILE"

	// TracesEndpoint is the OTLP endpoint traces are exported to. Tracing is
	// disabled when unset.
	TracesEndpoint = "BROWSERBENCH_TRACES_ENDPOINT"

	// TracesProto is the OTLP protocol traces are exported with.
	TracesProto = "BROWSERBENCH_TRACES_PROTO"

	// TracesInsecure disables TLS when exporting traces.
	TracesInsecure = "BROWSERBENCH_TRACES_INSECURE"
)
