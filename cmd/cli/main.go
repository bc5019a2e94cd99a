package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"epf-data/internal/model"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

// Exit codes. Pipeline error kinds get their own code so scripts can tell them apart.
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitNotFound  = 3
	exitSchema    = 4
	exitParse     = 5
	exitAlignment = 6
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	color.New(color.FgRed, color.Bold).Fprint(stderr, "error: ")
	fmt.Fprintln(stderr, err)
	return exitCode(err)
}

// usageError marks bad invocations: wrong arguments, unknown flags or an invalid configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	switch model.KindOf(err) {
	case model.KindNotFound:
		return exitNotFound
	case model.KindSchemaMismatch:
		return exitSchema
	case model.KindParse:
		return exitParse
	case model.KindAlignment:
		return exitAlignment
	}
	return exitFailure
}
