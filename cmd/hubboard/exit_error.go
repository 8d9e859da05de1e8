package main

import "fmt"

// exitError carries an explicit process exit code out of a command.
// silent suppresses the fatal report for commands that already printed
// their own failure summary, like connectors test.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }
