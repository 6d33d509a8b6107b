// Package context re-exports the standard library context types under the
// short names used throughout this module, so call sites read
// `context.T`/`context.F` instead of repeating `context.Context`/`context.
// CancelFunc` everywhere a cancellable, deadline-bearing call chain is
// threaded through the session, store and dispatcher.
package context

import (
	"context"
	"time"
)

// T is a context.Context.
type T = context.Context

// F is a context.CancelFunc.
type F = context.CancelFunc

// Bg returns context.Background().
func Bg() T { return context.Background() }

// Cancel wraps context.WithCancel.
func Cancel(c T) (T, F) { return context.WithCancel(c) }

// Timeout wraps context.WithTimeout.
func Timeout(c T, d time.Duration) (T, F) { return context.WithTimeout(c, d) }
