//go:build debug

package dblwr

import "fmt"

// debugAssert panics with a message identifying which staging-area
// invariant failed. Built only into `-tags debug` binaries so the hot path
// pays nothing for it in production, the same opt-in tracing pattern as
// commonutils.PrintCaller.
func debugAssert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("staging area invariant violated: "+format, args...))
	}
}
