// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package comexeapp wires the registry, blob store, event codec, instance
// record and scripting host packages into the runtime's observable
// behavior: creating instances, dispatching events to them, running their
// event loops, and auditing the tree at shutdown.
package comexeapp

import (
	"fmt"
	"io"
	"sync"

	"github.com/pascalcombier/comexe/internal/instance"
	"github.com/pascalcombier/comexe/internal/registry"
)

const (
	// InitialInstanceCapacity is the registry's starting capacity.
	InitialInstanceCapacity = 16

	// DefaultLoaderConfiguration is installed before any instance starts.
	// Its contents are opaque to the core; only comexe/init.js attaches
	// meaning to the letters.
	DefaultLoaderConfiguration = "1RZ"

	// MaxLoaderConfigurationLength bounds SetLoaderConfiguration, matching
	// the original's 15-byte-plus-terminator fixed buffer.
	MaxLoaderConfigurationLength = 15
)

// Application owns the instance registry (B), the loader-configuration
// string, the root placeholder instance, and the arguments/startup script
// every created instance bootstraps with.
type Application struct {
	// mu is the registry mutex: the outermost lock in the
	// registry -> event -> state acquisition order. It guards Registry
	// and loaderConfiguration.
	mu       sync.Mutex
	Registry *registry.Registry

	Argv          []string
	StartupScript []byte

	loaderConfiguration string

	// root is the statically embedded placeholder parent for the main
	// instance. It never owns a thread and is never itself inserted into
	// Registry.
	root *instance.Instance

	Stdout io.Writer
	Stderr io.Writer

	exit func(code int)
}

// syncWriter serializes concurrent writes onto an underlying io.Writer.
// Stdout and Stderr are each shared by every instance's own goroutine (a
// script prints, or a startup failure reports fatally, from whichever OS
// thread happens to own that instance), so a plain io.Writer would let two
// instances interleave mid-write.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// New constructs an Application. argv becomes each instance's `arg` global;
// startupScript is fed to every instance's bootstrap load step.
func New(argv []string, startupScript []byte, opts ...Option) *Application {
	cfg := resolveConfig(opts)

	app := &Application{
		Registry:            registry.New(cfg.initialInstanceCapacity),
		Argv:                argv,
		StartupScript:       startupScript,
		loaderConfiguration: cfg.loaderConfigurationDefault,
		root:                &instance.Instance{ModuleName: "root"},
		Stdout:              &syncWriter{w: cfg.stdout},
		Stderr:              &syncWriter{w: cfg.stderr},
		exit:                cfg.exitFunc,
	}
	return app
}

// Root returns the statically embedded placeholder parent used for the
// main instance. It is never itself present in Registry.
func (a *Application) Root() *instance.Instance {
	return a.root
}

// terminateFatal reports err to Stderr and calls the configured exit
// function with its code. Unlike a thrown script exception, this is not
// catchable by script-level try/catch: it models the original's direct
// exit() calls from deep inside the event-processing call stack, which
// pcall has no way to intercept.
func (a *Application) terminateFatal(err *FatalError) {
	fmt.Fprintf(a.Stderr, "FATAL: %v\n", err)
	a.exit(err.Code)
}

// LoaderConfiguration returns a snapshot of the current loader
// configuration string, read under the registry mutex (the read is not
// lock-free). There is no broadcast of updates to already-running
// instances.
func (a *Application) LoaderConfiguration() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaderConfiguration
}

// SetLoaderConfiguration validates s against the length bound and installs
// it. It affects only the current writer and instances created after this
// call returns.
func (a *Application) SetLoaderConfiguration(s string) error {
	if len(s) > MaxLoaderConfigurationLength {
		return fmt.Errorf("comexeapp: LoaderConfiguration must be at most %d bytes, got %d", MaxLoaderConfigurationLength, len(s))
	}
	a.mu.Lock()
	a.loaderConfiguration = s
	a.mu.Unlock()
	return nil
}
