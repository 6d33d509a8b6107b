// Package errorf provides a single formatted-error constructor, used in
// place of repeating fmt.Errorf everywhere an error needs a call-site
// specific message.
package errorf

import "fmt"

// E formats and returns an error, same semantics as fmt.Errorf without the
// %w verb (nothing in this codebase currently needs error-chain unwrapping
// beyond what chk.E's logging already surfaces).
func E(format string, args ...any) error { return fmt.Errorf(format, args...) }
