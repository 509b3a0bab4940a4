// Command freezer propagates storage-tier tags from freeze directives onto the
// objects of a locally mounted bucket.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "freezer:", ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "freezer:", err)
		os.Exit(1)
	}
}

// exitError carries the process exit status: 2 for invalid configuration,
// 1 for unavailable dependencies and 3 for a broken ledger chain.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func invalidConfig(err error) error { return &exitError{code: 2, err: err} }

func unavailable(err error) error { return &exitError{code: 1, err: err} }
