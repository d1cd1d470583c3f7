// Package share hands exported files to the desktop's default handler.
package share

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/bryanwahyu/mediscan/internal/domain/report"
)

// Opener implements report.Sharer with the platform "open" command
// (xdg-open, open, or rundll32 url.dll on Windows).
type Opener struct {
	command string
	args    []string
	look    func(string) (string, error)
}

var _ report.Sharer = (*Opener)(nil)

func NewOpener() *Opener {
	o := &Opener{look: exec.LookPath}
	switch runtime.GOOS {
	case "darwin":
		o.command = "open"
	case "windows":
		o.command, o.args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		o.command = "xdg-open"
	}
	return o
}

// Available reports whether the open command exists on PATH.
func (o *Opener) Available() bool {
	_, err := o.look(o.command)
	return err == nil
}

// Share opens path and returns a file:// reference to it.
func (o *Opener) Share(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	bin, err := o.look(o.command)
	if err != nil {
		return "", fmt.Errorf("share surface unavailable: %w", err)
	}
	args := append(append([]string(nil), o.args...), path)
	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	// the viewer outlives us; reap in the background
	go func() { _ = cmd.Wait() }()
	return "file://" + path, nil
}
