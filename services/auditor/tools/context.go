// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMissingContext indicates a tool required an execution-context value
// that no prior tool has set. This is the mechanism that encodes "clone
// before index before search" ordering without a rigid state machine: the
// model observes the failure and learns to call the setup tools first.
var ErrMissingContext = errors.New("required execution context not set")

// ExecutionContext is the per-conversation mutable store shared by all
// tools invoked within one session.
//
// It holds the location of the cloned repository under assessment and the
// identity of the currently open analysis record. It is created with the
// session, mutated by tools, and never replaced. Two concurrent
// conversations each own a distinct ExecutionContext; nothing in this
// package reaches for ambient global state.
//
// Thread Safety:
//
//	Safe for concurrent use. Within a session only one reasoning cycle
//	runs at a time, but release hooks and progress emission may touch the
//	context from other goroutines during teardown.
type ExecutionContext struct {
	mu sync.RWMutex

	// repositoryPath is the working directory of the cloned repository.
	repositoryPath string

	// repositoryURL is the origin the repository was cloned from.
	repositoryURL string

	// analysisID identifies the open analysis record.
	analysisID string

	// releaseHooks run when the owning session ends. Tools that acquire
	// external resources (a cloned working directory, a temp file)
	// register the cleanup here; the core signals release, the hook
	// performs it.
	releaseHooks []func() error
}

// NewExecutionContext creates an empty execution context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{}
}

// RepositoryPath returns the cloned repository's working directory.
//
// Outputs:
//
//	string - The working directory.
//	error - ErrMissingContext if no clone-capable tool has run yet.
func (c *ExecutionContext) RepositoryPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.repositoryPath == "" {
		return "", fmt.Errorf("%w: repository location (clone a repository first)", ErrMissingContext)
	}
	return c.repositoryPath, nil
}

// SetRepository records the cloned repository's location and origin URL.
func (c *ExecutionContext) SetRepository(path, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repositoryPath = path
	c.repositoryURL = url
}

// RepositoryURL returns the origin URL of the cloned repository, or ""
// if no repository has been cloned.
func (c *ExecutionContext) RepositoryURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.repositoryURL
}

// AnalysisID returns the identifier of the open analysis record.
//
// Outputs:
//
//	string - The analysis identifier.
//	error - ErrMissingContext if no analysis has been opened yet.
func (c *ExecutionContext) AnalysisID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.analysisID == "" {
		return "", fmt.Errorf("%w: active analysis (open an analysis first)", ErrMissingContext)
	}
	return c.analysisID, nil
}

// SetAnalysisID records the identifier of the open analysis record.
func (c *ExecutionContext) SetAnalysisID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analysisID = id
}

// OnRelease registers a cleanup hook to run when the owning session ends.
// Hooks run in registration order; a failing hook does not stop the rest.
func (c *ExecutionContext) OnRelease(hook func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHooks = append(c.releaseHooks, hook)
}

// Release runs all registered cleanup hooks and clears the context.
// It is idempotent; a second call is a no-op.
//
// Outputs:
//
//	error - The first hook error encountered (remaining hooks still run).
func (c *ExecutionContext) Release() error {
	c.mu.Lock()
	hooks := c.releaseHooks
	c.releaseHooks = nil
	c.repositoryPath = ""
	c.repositoryURL = ""
	c.analysisID = ""
	c.mu.Unlock()

	var first error
	for _, hook := range hooks {
		if err := hook(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
