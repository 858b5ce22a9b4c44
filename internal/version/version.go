// Package version holds build information, set with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/subscription-dashboard/internal/version.Version=1.2.0 \
//	                   -X github.com/rickgao/subscription-dashboard/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/subscription-dashboard/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	         ./cmd/dashboard
package version

import "log/slog"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// Attr groups the build information for a startup log line.
func Attr() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("time", BuildTime),
	)
}
