// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bootstrap

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-exe")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entryWriter, err := w.Create(name)
		require.NoError(t, err)
		_, err = entryWriter.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestLoadEmbeddedScript_ReadsEntryVerbatim(t *testing.T) {
	path := writeZip(t, map[string]string{
		EntryName: "print('hi')",
		"other":   "ignored",
	})

	data, err := LoadEmbeddedScript(path)
	require.NoError(t, err)
	require.Equal(t, "print('hi')", string(data))
}

func TestLoadEmbeddedScript_MissingEntryIsError(t *testing.T) {
	path := writeZip(t, map[string]string{"other": "ignored"})

	_, err := LoadEmbeddedScript(path)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestLoadEmbeddedScript_NonZipExecutableIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755))

	_, err := LoadEmbeddedScript(path)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrEntryNotFound))
}
