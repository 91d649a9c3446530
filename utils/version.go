package utils

// Set by -ldflags at build time.
var (
	Tag        = "dev"
	GitHash    = "unknown"
	BuildStamp = "unknown"
)
