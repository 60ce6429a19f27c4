// File: cmd/availity-rpa/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/availity-rpa/cmd"
	"github.com/xkilldash9x/availity-rpa/internal/observability"
	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

const panicLogFile = "panic.log"

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile           = os.WriteFile
	osExit                = os.Exit
	stdout      io.Writer = os.Stdout
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		if errors.Is(err, context.Canceled) {
			osExit(130)
			return
		}
		osExit(1)
	}
}

// handlePanic logs a crash to panic.log. A crashed automation run still
// prints its failure FINAL_RESULT so the caller never waits on a missing line.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
	} else {
		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
	}

	if isRunCommand(os.Args) {
		_ = workflow.WriteFinalResult(stdout, workflow.FailedResult(fmt.Errorf("panic: %v", r)))
	}
	osExit(2)
}

// isRunCommand reports whether args invoke one of the workflow subcommands.
func isRunCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}
	for _, arg := range args[1:] {
		switch workflow.Kind(arg) {
		case workflow.KindEligibility, workflow.KindPriorAuth:
			return true
		}
	}
	return false
}
