// Command duoload exports a Duocards deck to an Anki package or JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/output"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error: "+userMessage(err))
		return 1
	}
	return 0
}

// runtimeError marks a failure after the command line and configuration were
// accepted. Its text is internal detail and is only logged.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }

func (e *runtimeError) Unwrap() error { return e.err }

// userMessage renders err for the terminal. Usage and configuration errors
// are shown as is; runtime failures are mapped to fixed messages.
func userMessage(err error) string {
	if msg := client.UserMessage(err); msg != "" {
		return msg
	}
	if msg := output.UserMessage(err); msg != "" {
		return msg
	}

	var fe *client.FetchError
	var re *runtimeError
	switch {
	case errors.As(err, &fe):
		return "Fetching the deck failed."
	case errors.Is(err, context.DeadlineExceeded):
		return "The transfer took too long and was stopped."
	case errors.As(err, &re):
		return "The transfer failed unexpectedly. See the log output for details."
	default:
		return err.Error()
	}
}
