// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bootstrap loads the startup script embedded in the running
// executable: the binary doubles as a zip archive with an appended
// central directory, and the script lives at a fixed entry name inside it.
package bootstrap

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
)

// EntryName is the zip entry the startup script is read from.
const EntryName = "comexe/init.js"

// ErrEntryNotFound is returned when the executable is a valid zip archive
// but does not contain EntryName. The caller treats any error from
// LoadEmbeddedScript as fatal (process exit code 5); an entry that is
// present but empty is returned as empty data with no error.
var ErrEntryNotFound = errors.New("bootstrap: startup script entry not found")

// LoadEmbeddedScript opens exeFilename as a zip archive and returns the
// uncompressed bytes of EntryName. A non-zip executable (no embedded
// archive yet appended) returns the wrapped zip open error, which is not
// ErrEntryNotFound; a valid archive without the entry returns
// ErrEntryNotFound. Either way no startup script is available.
func LoadEmbeddedScript(exeFilename string) ([]byte, error) {
	reader, err := zip.OpenReader(exeFilename)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open %q as zip: %w", exeFilename, err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if f.Name != EntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open entry %q: %w", EntryName, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: read entry %q: %w", EntryName, err)
		}
		return data, nil
	}

	return nil, ErrEntryNotFound
}
