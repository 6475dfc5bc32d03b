//go:build windows
// +build windows

package juliagate

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// setSignalsForChannel configures the channel to receive interrupt signals.
func setSignalsForChannel(c chan os.Signal) {
	signal.Notify(c, os.Interrupt)
}

// waitForExit waits for a command to exit and returns an appropriate error.
func waitForExit(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ExitCode() == -1 {
				// The child process was killed
				return errors.New("child process was killed")
			}
		}
		return err
	}
	return nil
}

// setExtraFiles attaches extra files to the command via handle inheritance and
// returns their handle values as strings. The Julia bootstrap converts the
// inherited handles back to file descriptors with Libc.open_osfhandle.
func setExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) []string {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}

	handles := make([]syscall.Handle, len(extraFiles))
	retv := make([]string, len(extraFiles))
	for i, f := range extraFiles {
		handles[i] = syscall.Handle(f.Fd())
		retv[i] = fmt.Sprintf("%d", f.Fd())
	}
	cmd.SysProcAttr.AdditionalInheritedHandles = handles
	return retv
}
