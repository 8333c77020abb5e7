package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

var start = time.Now().UTC()

// StartTime is recorded when the process starts
var StartTime = start.Format(time.RFC3339)

// Uptime reports how long the process has been running.
func Uptime() time.Duration {
	return time.Since(start).Round(time.Second)
}
