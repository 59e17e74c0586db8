//go:build !debug

package dblwr

func debugAssert(cond bool, format string, args ...interface{}) {}
