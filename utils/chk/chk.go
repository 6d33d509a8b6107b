// Package chk provides the boolean error-check helpers used throughout the
// relay: `if err = f(); chk.E(err) { return }` logs the error and reports
// whether one occurred, collapsing the usual
// three-line "if err != nil { log; return }" into one.
package chk

import "orly.dev/utils/log"

// E logs err at error level via log.E and returns true iff err is non-nil.
// The file:line in the log prefix is that of this function, not of the
// code that called E. Use at a call site that should log and
// bail out on failure.
func E(err error) bool {
	if err == nil {
		return false
	}
	log.E.F("%s", err.Error())
	return true
}

// T reports whether err is non-nil, without logging. Use where the caller
// wants to construct its own message for the error.
func T(err error) bool { return err != nil }
