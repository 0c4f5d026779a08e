package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/automaxprocs/maxprocs"

	zlog "github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
)

// exitError carries the process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(zlog.S().Debugf)); err != nil {
		zlog.S().Warnf("set GOMAXPROCS: %v", err)
	}

	if err := run(context.Background(), os.Stdin, os.Stdout, os.Args[1:]); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if c := merr.Code(err); c > 0 && code == 1 {
			fmt.Fprintf(os.Stderr, "error[%d]: %v\n", c, err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(code)
	}
}

// run dispatches a subcommand. args excludes the program name.
func run(ctx context.Context, in io.Reader, out io.Writer, args []string) error {
	opts, err := parseGlobal(out, args)
	if err != nil || opts == nil {
		return err
	}
	cmd, ok := commands[opts.command]
	if !ok {
		return usageError("unknown command %q", opts.command)
	}
	return cmd(ctx, in, out, opts)
}
