package main

import (
	"os"
	"sync"

	"github.com/hubboard/hubboard/internal/logging"
	"github.com/spf13/cobra"
)

// Commands annotated with this run under the structured logger; interactive
// commands print plain text instead.
const annotationStructuredLog = "structured-log"

var rootCmd = &cobra.Command{
	Use:           "hubboard",
	Short:         "Hubboard is a small self-hosted dashboard for homelab services.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		structured := commandUsesStructuredLogging(cmd)
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: structured,
		})
		if structured {
			if _, err := logging.Install(os.Stderr, cmd.CommandPath()); err != nil {
				return err
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandCtxMu sync.Mutex
	commandCtx   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandCtxMu.Lock()
	commandCtx = ctx
	commandCtxMu.Unlock()
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	commandCtxMu.Lock()
	defer commandCtxMu.Unlock()
	return commandCtx
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStructuredLog] == "true" {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, probeCmd, connectorsCmd, plexCmd)
}
