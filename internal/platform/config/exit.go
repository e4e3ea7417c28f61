package config

import (
	"fmt"
	"os"
)

// Exitf reports a fatal startup error on stderr and terminates the process
// with a non-zero status.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
