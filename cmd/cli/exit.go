package main

import (
	"fmt"
	"os"

	"github.com/nadscan/nadscan/pkg/ui"
)

// exitWithError prints a formatted error to stderr and exits with code 1.
func exitWithError(format string, args ...any) {
	ui.NewPrinter(os.Stderr, ui.Terminal{}).Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// exitWithUsage prints msg followed by a usage hint, then exits.
func exitWithUsage(msg, usage string) {
	ui.NewPrinter(os.Stderr, ui.Terminal{}).Error(msg)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:", usage)
	os.Exit(1)
}
