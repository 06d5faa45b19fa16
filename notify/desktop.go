package notify

import (
	"context"
	"fmt"
	"os/exec"
)

// ExecDesktop shows desktop notifications through the notify-send command. It is
// permitted only when the command is installed.
type ExecDesktop struct {
	Command string
	Icon    string
}

func NewExecDesktop() *ExecDesktop {
	return &ExecDesktop{Command: "notify-send", Icon: "dialog-information"}
}

func (d *ExecDesktop) Permitted() bool {
	_, err := exec.LookPath(d.Command)
	return err == nil
}

func (d *ExecDesktop) Show(ctx context.Context, title, body string) error {
	args := []string{title, body}
	if d.Icon != "" {
		args = append([]string{"--icon", d.Icon}, args...)
	}
	if out, err := exec.CommandContext(ctx, d.Command, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", d.Command, err, out)
	}
	return nil
}
