// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package comexeapp

import (
	"io"
	"os"
)

// config holds resolved Application configuration.
type config struct {
	initialInstanceCapacity    uint64
	loaderConfigurationDefault string
	stdout                     io.Writer
	stderr                     io.Writer
	exitFunc                   func(code int)
}

// Option configures an Application at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithInitialInstanceCapacity overrides the registry's starting capacity
// (default 16, per §4.F).
func WithInitialInstanceCapacity(n uint64) Option {
	return optionFunc(func(c *config) { c.initialInstanceCapacity = n })
}

// WithLoaderConfigurationDefault overrides the LoaderConfiguration string
// installed before any instance is created (default "1RZ").
func WithLoaderConfigurationDefault(s string) Option {
	return optionFunc(func(c *config) { c.loaderConfigurationDefault = s })
}

// WithStdout/WithStderr redirect the writers RunApplication's orphan report
// and the runtime's own diagnostics go to, so tests can capture output
// instead of polluting the real process streams.
func WithStdout(w io.Writer) Option {
	return optionFunc(func(c *config) { c.stdout = w })
}

func WithStderr(w io.Writer) Option {
	return optionFunc(func(c *config) { c.stderr = w })
}

// WithExitFunc overrides how a fatal, non-recoverable error (startup
// script failure, a missing event handler or an unknown decoded event
// variant, on an instance's own thread) terminates the process.
// Defaults to os.Exit; tests substitute a function that records the code
// instead of actually exiting.
func WithExitFunc(f func(code int)) Option {
	return optionFunc(func(c *config) { c.exitFunc = f })
}

func resolveConfig(opts []Option) *config {
	c := &config{
		initialInstanceCapacity:    InitialInstanceCapacity,
		loaderConfigurationDefault: DefaultLoaderConfiguration,
		stdout:                     os.Stdout,
		stderr:                     os.Stderr,
		exitFunc:                   os.Exit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(c)
	}
	return c
}
