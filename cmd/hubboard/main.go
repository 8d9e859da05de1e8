package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hubboard/hubboard/internal/logging"
)

func main() {
	os.Exit(run(Execute, os.Stderr))
}

// run maps a command's failure onto an exit code and a single report on
// stderr. Cancellation uses the shell convention of 128+SIGINT.
func run(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	switch {
	case errors.As(err, &ee):
		if !ee.silent {
			cause := err
			if ee.err != nil {
				cause = ee.err
			}
			reportFailure(cause, "command failed", ee.code, stderr)
		}
		return ee.code
	case errors.Is(err, context.Canceled):
		reportFailure(err, "command canceled", 130, stderr)
		return 130
	default:
		reportFailure(err, "command failed", 1, stderr)
		return 1
	}
}

// reportFailure writes the one fatal line. Commands that run under the
// structured logger get a structured record; interactive commands get
// plain text. The fatal path builds its own logger because the failure
// may predate PersistentPreRunE.
func reportFailure(err error, message string, code int, stderr io.Writer) {
	cmdCtx := currentCommandExecutionContext()
	if !cmdCtx.UsesStructuredLog {
		if code == 130 {
			fmt.Fprintln(stderr, "canceled")
		} else {
			fmt.Fprintln(stderr, err)
		}
		return
	}

	settings, envErr := logging.FromEnv()
	if envErr != nil {
		settings = logging.Default()
	}
	settings.Logger(stderr, cmdCtx.CommandPath).Error(message, "exit_code", code, "error", err)
}
