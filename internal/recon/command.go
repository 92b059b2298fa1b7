package recon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// CommandRunner runs an external program and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends.
type ExecRunner struct {
	Logger logrus.FieldLogger
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	log := r.logger().WithFields(logrus.Fields{
		"command": name,
		"args":    args,
	})
	log.Debug("Executing command")

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			log.WithField("stderr", stderr.String()).Debug("Command stderr output")
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		return stdout.Bytes(), err
	}

	return stdout.Bytes(), nil
}

func (r *ExecRunner) logger() logrus.FieldLogger {
	if r == nil || r.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return r.Logger
}
