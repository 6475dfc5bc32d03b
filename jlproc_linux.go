//go:build linux
// +build linux

package juliagate

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// bindToParent arranges for the Julia child to receive SIGKILL if the Go
// parent dies. This covers abrupt parent death that the signal handler in
// setupSignalHandler cannot, such as SIGKILL of the parent itself.
func bindToParent(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}
