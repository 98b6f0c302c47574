// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// App is the canonical application identifier used for filesystem paths and CLI branding.
	App = "mpvbridge"

	// Version is the current application semantic version string.
	Version = "0.3.0"
)

// Build metadata, populated via -ldflags at release time.
var (
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
	Revision = "unknown"
)

// Banner is printed above the root command's long help.
const Banner = `
 ┌┬┐┌─┐┬  ┬  ┌┐ ┬─┐┬┌┬┐┌─┐┌─┐
 │││├─┘└┐┌┘  ├┴┐├┬┘│ │││ ┬├┤ 
 ┴ ┴┴   └┘   └─┘┴└─┴─┴┘└─┘└─┘`
