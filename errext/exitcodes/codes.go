// Package exitcodes contains the process exit codes of browserbench.
package exitcodes

// ExitCode is a process exit code.
type ExitCode uint8

// list of exit codes used by browserbench
const (
	BenchmarkFailed  ExitCode = 100
	BenchmarkTimeout ExitCode = 101
	InvalidConfig    ExitCode = 104
	TestDisabled     ExitCode = 105
	BrowserConnect   ExitCode = 106
)
