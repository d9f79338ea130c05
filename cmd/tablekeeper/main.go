package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harun/tablekeeper/internal/cli"
	"github.com/harun/tablekeeper/pkg/domain"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates refused requests from operational failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownTool),
		errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrCharacterLocked),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrActionExpired),
		errors.Is(err, domain.ErrRewindOutOfRange):
		return 2
	}
	return 1
}
