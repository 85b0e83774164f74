package auth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Launcher opens a URL in the user's default browser.
type Launcher interface {
	Open(url string) error
}

// ExecLauncher delegates to the platform opener. The coordinator treats
// it as fire-and-forget: the callback listener is the only feedback
// channel, so a launch error is logged but never fails the attempt.
type ExecLauncher struct{}

// Open starts the platform opener without waiting for it to exit.
func (ExecLauncher) Open(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	// Reap the opener once it exits so it does not linger as a zombie.
	go cmd.Wait()

	return nil
}
