//go:build darwin
// +build darwin

package juliagate

import "os/exec"

// bindToParent is a no-op on macOS; there is no parent-death signal. Orphaned
// children are still reaped via the signal handler in setupSignalHandler.
func bindToParent(cmd *exec.Cmd) {}
