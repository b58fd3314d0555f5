// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package platform

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsATTY_RegularFileIsNotATTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "platform-test")
	require.NoError(t, err)
	defer f.Close()

	require.False(t, IsATTY(int(f.Fd())))
}

func TestPageSize_PositiveAndAligned(t *testing.T) {
	size := PageSize()
	require.Positive(t, size)
	require.Zero(t, size%4096)
}
