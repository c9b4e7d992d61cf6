//go:build !windows

package main

// enableVT is a no-op; Unix terminals handle ANSI sequences natively.
func enableVT() {}
