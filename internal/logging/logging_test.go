// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, LevelWarn)

	l.Log(LogEntry{Level: LevelInfo, Category: "test", Message: "ignored"})
	require.Empty(t, buf.String())

	l.Log(LogEntry{Level: LevelWarn, Category: "test", Message: "shown"})
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "[WARN]")
}

func TestWriterLogger_IncludesFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, LevelDebug)

	l.Log(LogEntry{
		Level:    LevelError,
		Category: "dispatch",
		Message:  "post failed",
		Fields:   map[string]any{"offset": 5},
		Err:      errors.New("boom"),
	})

	out := buf.String()
	require.True(t, strings.Contains(out, "offset=5"))
	require.True(t, strings.Contains(out, "err=boom"))
}

func TestNoOpLogger_NeverEnabled(t *testing.T) {
	var l NoOpLogger
	require.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "discarded"})
}

func TestDefault_SetAndRestore(t *testing.T) {
	var buf bytes.Buffer
	custom := NewWriterLogger(&buf, LevelDebug)
	SetDefault(custom)
	defer SetDefault(NewWriterLogger(&bytes.Buffer{}, LevelInfo))

	Info("category", "hello", nil)
	require.Contains(t, buf.String(), "hello")
}
