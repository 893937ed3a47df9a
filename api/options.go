package api

// BrowserOptions is the mutable set of options a browser is launched with.
type BrowserOptions interface {
	AppendExtraBrowserArgs(args ...string)
	ExtraBrowserArgs() []string
}
