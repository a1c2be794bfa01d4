// Package buildinfo provides build information for clipshare.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/distsystem/clipshare/internal/infra/buildinfo.Version=v1.0.0"
//
// When Commit is not injected it is taken from the VCS stamp the Go
// toolchain embeds in module builds.
package buildinfo
