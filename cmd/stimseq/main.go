package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spboyer/stimseq/internal/models"
)

// Exit codes for different session outcomes
const (
	ExitSuccess     = 0 // Session completed
	ExitAborted     = 1 // Session aborted by participant or operator
	ExitError       = 2 // Configuration or runtime error
	ExitUnavailable = 3 // A stimulus resource could not be played
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case models.IsResourceUnavailable(err):
		return ExitUnavailable
	case errors.Is(err, models.ErrAborted):
		return ExitAborted
	default:
		// All other errors are configuration/runtime errors
		return ExitError
	}
}
