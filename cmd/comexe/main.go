// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command comexe runs a component-based scripted application embedded in
// its own executable image.
package main

import (
	"fmt"
	"os"

	"github.com/pascalcombier/comexe/internal/bootstrap"
	"github.com/pascalcombier/comexe/internal/comexeapp"
	"github.com/pascalcombier/comexe/internal/logging"
)

func main() {
	os.Exit(run(os.Args))
}

// run performs the CLI's observable behavior and returns the process
// exit code, rather than calling os.Exit itself, so it can be exercised
// by tests without terminating the test binary.
func run(argv []string) int {
	if len(argv) >= 2 && argv[1] == "--comexe-version" {
		fmt.Print(comexeapp.VersionString())
		return comexeapp.ExitSuccess
	}

	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not locate own executable: %v\n", err)
		return comexeapp.ExitFatalAllocator
	}

	startupScript, err := bootstrap.LoadEmbeddedScript(exePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not load embedded startup script: %v\n", err)
		return comexeapp.ExitStartupScriptFailure
	}

	logging.SetDefault(logging.NewWriterLogger(os.Stderr, logging.LevelInfo))

	// A fatal error on any instance's thread (startup-script failure,
	// missing event handler, unknown decoded variant) calls the default
	// exit function directly from wherever it is detected, exactly like
	// the original's exit() calls deep inside the dispatch call stack:
	// there is no path back to this line in that case.
	app := comexeapp.New(argv[1:], startupScript)

	comexeapp.CreateInstance(app, app.Root(), "main", "")
	return comexeapp.RunApplication(app)
}
