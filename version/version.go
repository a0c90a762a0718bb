// Package version exposes the build identity stamped into the loom binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via ldflags, e.g.
//
//	go build -ldflags "-X github.com/teranos/loom/version.Version=v0.3.0 \
//	  -X github.com/teranos/loom/version.CommitHash=$(git rev-parse HEAD) \
//	  -X github.com/teranos/loom/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the build identity reported by `loom version`, the daemon status
// endpoint, and the WebSocket handshake.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the build identity of this binary.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders the identity as one human-readable line.
func (i Info) String() string {
	v := i.Version
	if v == "dev" || v == "" {
		v = "dev"
	}
	return fmt.Sprintf("loom %s (commit %s, built %s)", v, i.CommitHash, i.BuildTime)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
