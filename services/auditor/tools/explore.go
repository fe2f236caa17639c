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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// list_directory Tool
// =============================================================================

// DirEntry describes one entry of a listed directory.
type DirEntry struct {
	// Name is the entry name relative to the listed directory.
	Name string `json:"name"`

	// IsDir indicates a subdirectory.
	IsDir bool `json:"is_dir"`

	// Size is the file size in bytes (0 for directories).
	Size int64 `json:"size"`
}

// ListDirectoryOutput contains the structured listing.
type ListDirectoryOutput struct {
	// Path is the listed directory, relative to the repository root.
	Path string `json:"path"`

	// Entries are the directory contents, directories first.
	Entries []DirEntry `json:"entries"`
}

// listDirectoryTool lists a directory of the cloned repository.
//
// Thread Safety: Safe for concurrent use. Read-only.
type listDirectoryTool struct{}

// NewListDirectoryTool creates the list_directory tool.
func NewListDirectoryTool() Tool {
	return &listDirectoryTool{}
}

func (t *listDirectoryTool) Name() string {
	return "list_directory"
}

func (t *listDirectoryTool) Definition() Definition {
	return Definition{
		Name: "list_directory",
		Usage: "List the contents of a directory in the cloned repository. " +
			"Use this to orient yourself in the tree before reading files. " +
			"Requires a cloned repository.",
		Parameters: map[string]ParamDef{
			"path": {
				Type:        ParamTypeString,
				Description: "Directory path relative to the repository root (\".\" for the root)",
				Required:    false,
				Default:     ".",
			},
		},
		Phase: PhaseExploration,
	}
}

// Execute lists the directory.
func (t *listDirectoryTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	root, err := env.Context.RepositoryPath()
	if err != nil {
		return nil, err
	}

	rel := stringParam(params, "path", ".")
	abs, err := resolveInRepo(root, rel)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		msg := fmt.Sprintf("cannot list %s: %v", rel, err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	output := ListDirectoryOutput{Path: rel}
	for _, e := range entries {
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			de.Size = info.Size()
		}
		output.Entries = append(output.Entries, de)
	}
	sort.Slice(output.Entries, func(i, j int) bool {
		a, b := output.Entries[i], output.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d entries):\n", rel, len(output.Entries)))
	for _, e := range output.Entries {
		if e.IsDir {
			sb.WriteString(fmt.Sprintf("  %s/\n", e.Name))
		} else {
			sb.WriteString(fmt.Sprintf("  %s (%d bytes)\n", e.Name, e.Size))
		}
	}

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: sb.String(),
	}, nil
}

// =============================================================================
// read_file Tool
// =============================================================================

// ReadFileOutput contains the structured result of a file read.
type ReadFileOutput struct {
	// Path is the file path relative to the repository root.
	Path string `json:"path"`

	// StartLine is the first line returned (1-based).
	StartLine int `json:"start_line"`

	// EndLine is the last line returned.
	EndLine int `json:"end_line"`

	// TotalLines is the file's total line count.
	TotalLines int `json:"total_lines"`

	// Content is the requested slice of the file.
	Content string `json:"content"`
}

// readFileTool reads a file from the cloned repository.
//
// Thread Safety: Safe for concurrent use. Read-only.
type readFileTool struct {
	// maxBytes caps how much of a file a single read may return.
	maxBytes int64
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool() Tool {
	return &readFileTool{maxBytes: 256 * 1024}
}

func (t *readFileTool) Name() string {
	return "read_file"
}

func (t *readFileTool) Definition() Definition {
	return Definition{
		Name: "read_file",
		Usage: "Read a file (or a line range of it) from the cloned repository. " +
			"Use this to inspect suspected vulnerable code before recording a finding. " +
			"Requires a cloned repository.",
		Parameters: map[string]ParamDef{
			"path": {
				Type:        ParamTypeString,
				Description: "File path relative to the repository root",
				Required:    true,
				MinLength:   1,
			},
			"start_line": {
				Type:        ParamTypeInt,
				Description: "First line to return, 1-based (default 1)",
				Required:    false,
				Minimum:     floatPtr(1),
			},
			"end_line": {
				Type:        ParamTypeInt,
				Description: "Last line to return (default: end of file)",
				Required:    false,
				Minimum:     floatPtr(1),
			},
		},
		Phase: PhaseExploration,
	}
}

// Execute reads the file slice.
func (t *readFileTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	root, err := env.Context.RepositoryPath()
	if err != nil {
		return nil, err
	}

	rel := stringParam(params, "path", "")
	abs, err := resolveInRepo(root, rel)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		msg := fmt.Sprintf("cannot read %s: %v", rel, err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}
	if info.IsDir() {
		msg := fmt.Sprintf("%s is a directory; use list_directory", rel)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}
	if info.Size() > t.maxBytes {
		msg := fmt.Sprintf("%s is %d bytes, larger than the %d byte read limit; request a line range",
			rel, info.Size(), t.maxBytes)
		if _, hasStart := params["start_line"]; !hasStart {
			return &Result{Success: false, Error: msg, OutputText: msg}, nil
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		msg := fmt.Sprintf("cannot read %s: %v", rel, err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)

	start := intParam(params, "start_line", 1)
	end := intParam(params, "end_line", total)
	if start < 1 {
		start = 1
	}
	if end > total {
		end = total
	}
	if start > end {
		msg := fmt.Sprintf("start_line %d is past end_line %d (file has %d lines)", start, end, total)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	content := strings.Join(lines[start-1:end], "\n")
	output := ReadFileOutput{
		Path:       rel,
		StartLine:  start,
		EndLine:    end,
		TotalLines: total,
		Content:    content,
	}

	header := fmt.Sprintf("%s lines %d-%d of %d:\n", rel, start, end, total)
	return &Result{
		Success:    true,
		Output:     output,
		OutputText: header + content,
	}, nil
}

// floatPtr returns a pointer to v for schema bounds.
func floatPtr(v float64) *float64 {
	return &v
}

// repoRelative converts an absolute path under the repository root back to
// the relative form shown to the model.
func repoRelative(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return abs
	}
	return rel
}
