// Package buildinfo stamps logs and metrics with the binary's VCS revision,
// mirroring sigs.k8s.io/karpenter/pkg/utils/env.GetRevision and the way
// pkg/operator/logging.WithCommit consumes it.
package buildinfo

import "runtime/debug"

const Unknown = "unknown"

// Revision returns the vcs.revision build setting embedded by the Go
// toolchain, or Unknown if the binary wasn't built from a VCS checkout
// (e.g. `go build` outside a repo, or a stripped release artifact).
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Unknown
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return Unknown
}
