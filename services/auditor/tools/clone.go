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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// clone_repository Tool
// =============================================================================

// CloneOutput contains the structured result of a clone.
type CloneOutput struct {
	// RepositoryURL is the origin that was cloned.
	RepositoryURL string `json:"repository_url"`

	// Path is the local working directory of the clone.
	Path string `json:"path"`

	// Branch is the branch that was checked out, if one was requested.
	Branch string `json:"branch,omitempty"`
}

// cloneTool clones a remote repository into a managed temp directory and
// records the location on the execution context.
//
// Description:
//
//	Runs `git clone --depth 1` into a fresh temp directory. On success the
//	repository location is stored on the execution context so exploration
//	and search tools can find it, and a release hook is registered to
//	remove the working directory when the session ends.
//
// Thread Safety: Safe for concurrent use across sessions; each invocation
// clones into its own directory.
type cloneTool struct {
	// baseDir overrides the temp parent directory (tests).
	baseDir string

	logger *slog.Logger
}

// NewCloneTool creates the clone_repository tool.
func NewCloneTool() Tool {
	return &cloneTool{logger: slog.Default()}
}

func (t *cloneTool) Name() string {
	return "clone_repository"
}

func (t *cloneTool) Definition() Definition {
	return Definition{
		Name: "clone_repository",
		Usage: "Clone the repository under assessment into a local working directory. " +
			"Call this first: exploration, indexing, and search tools all operate on " +
			"the cloned tree and will fail until a repository has been cloned.",
		Parameters: map[string]ParamDef{
			"url": {
				Type:        ParamTypeString,
				Description: "Repository URL to clone (https or git)",
				Required:    true,
				MinLength:   1,
			},
			"branch": {
				Type:        ParamTypeString,
				Description: "Branch to check out (default branch if omitted)",
				Required:    false,
			},
		},
		Phase:       PhaseSetup,
		SideEffects: true,
		Timeout:     5 * time.Minute,
	}
}

// Execute runs the clone.
func (t *cloneTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	url := stringParam(params, "url", "")
	branch := stringParam(params, "branch", "")

	env.Progress(fmt.Sprintf("Cloning %s ...", url))

	dir, err := os.MkdirTemp(t.baseDir, "audit-clone-*")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", url, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(dir)
		t.logger.Warn("Clone failed", "url", url, "error", err)
		return &Result{
			Success:    false,
			Error:      fmt.Sprintf("git clone failed: %v: %s", err, firstLines(string(out), 5)),
			OutputText: fmt.Sprintf("git clone failed: %v: %s", err, firstLines(string(out), 5)),
		}, nil
	}

	env.Context.SetRepository(dir, url)
	env.Context.OnRelease(func() error {
		return os.RemoveAll(dir)
	})

	env.Progress("Clone complete")
	t.logger.Info("Repository cloned", "url", url, "path", dir)

	output := CloneOutput{RepositoryURL: url, Path: dir, Branch: branch}
	return &Result{
		Success:    true,
		Output:     output,
		OutputText: fmt.Sprintf("Cloned %s into %s", url, dir),
	}, nil
}

// firstLines returns at most n lines of s.
func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
