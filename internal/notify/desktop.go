package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Desktop sends freedesktop notifications through notify-send.
type Desktop struct {
	Binary  string
	AppName string
	Expire  time.Duration
	run     CommandRunner
}

// NewDesktop creates a desktop notifier. binary defaults to notify-send.
func NewDesktop(binary, appName string) *Desktop {
	if binary == "" {
		binary = "notify-send"
	}
	if appName == "" {
		appName = "Slouchless"
	}
	return &Desktop{
		Binary:  binary,
		AppName: appName,
		Expire:  8 * time.Second,
		run:     execRunner,
	}
}

// WithRunner replaces command execution (used in tests).
func (d *Desktop) WithRunner(run CommandRunner) *Desktop {
	d.run = run
	return d
}

func (d *Desktop) Name() string {
	return DesktopProvider
}

// Available reports whether the notifier binary is on PATH.
func (d *Desktop) Available() bool {
	_, err := exec.LookPath(d.Binary)
	return err == nil
}

// Send dispatches one notification. Some notification daemons reject the
// image-path hint; in that case it is retried without the hint.
func (d *Desktop) Send(ctx context.Context, msg Message) error {
	args := d.args(msg, true)
	out, err := d.run(ctx, d.Binary, args...)
	if err == nil {
		return nil
	}
	if msg.ImagePath == "" {
		return fmt.Errorf("%s failed: %w: %s", d.Binary, err, strings.TrimSpace(string(out)))
	}

	out, err = d.run(ctx, d.Binary, d.args(msg, false)...)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", d.Binary, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *Desktop) args(msg Message, withHint bool) []string {
	urgency := "normal"
	if msg.Urgent {
		urgency = "critical"
	}

	args := []string{"-a", d.AppName, "-u", urgency}
	if d.Expire > 0 {
		args = append(args, "-t", strconv.FormatInt(d.Expire.Milliseconds(), 10))
	}
	if msg.ImagePath != "" {
		args = append(args, "-i", msg.ImagePath)
		if withHint {
			args = append(args, "-h", "string:image-path:"+msg.ImagePath)
		}
	}

	title := msg.Title
	if title == "" {
		title = d.AppName
	}
	return append(args, title, msg.Body)
}
