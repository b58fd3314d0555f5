// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build windows

package platform

// isATTY is conservatively false on Windows: the console API this would
// need (GetConsoleMode) is a distinct check from the Unix ioctl family and
// is out of scope for this port; scripts should not rely on a true result
// here on Windows builds.
func isATTY(fd int) bool {
	return false
}

func pageSize() int {
	return 4096
}
