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
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// validate_pattern Tool
// =============================================================================

// PatternMatch is one concrete occurrence of a suspected pattern.
type PatternMatch struct {
	// FilePath is the matching file, relative to the repository root.
	FilePath string `json:"file_path"`

	// Line is the 1-based line number of the match.
	Line int `json:"line"`

	// Text is the matching line, trimmed.
	Text string `json:"text"`
}

// ValidatePatternOutput contains the structured scan result.
type ValidatePatternOutput struct {
	// Pattern is the regular expression as issued.
	Pattern string `json:"pattern"`

	// FilesScanned is the number of files examined.
	FilesScanned int `json:"files_scanned"`

	// Matches are the concrete occurrences found.
	Matches []PatternMatch `json:"matches"`
}

// validatePatternTool scans the cloned tree for a regular expression.
//
// Description:
//
//	Semantic search surfaces candidates; this tool confirms them. The
//	model supplies a regular expression and gets back every concrete
//	occurrence with file and line, so a finding can cite real evidence
//	rather than a similarity score.
//
// Thread Safety: Safe for concurrent use. Read-only.
type validatePatternTool struct {
	// maxMatches caps the match list in one scan.
	maxMatches int

	// maxFileBytes skips files larger than this (generated bundles,
	// vendored archives).
	maxFileBytes int64
}

// NewValidatePatternTool creates the validate_pattern tool.
func NewValidatePatternTool() Tool {
	return &validatePatternTool{
		maxMatches:   200,
		maxFileBytes: 1 << 20,
	}
}

func (t *validatePatternTool) Name() string {
	return "validate_pattern"
}

func (t *validatePatternTool) Definition() Definition {
	return Definition{
		Name: "validate_pattern",
		Usage: "Scan the cloned repository for a regular expression and return every " +
			"occurrence with file and line. Use this to confirm a suspected vulnerability " +
			"pattern before recording a finding. Requires a cloned repository.",
		Parameters: map[string]ParamDef{
			"pattern": {
				Type:        ParamTypeString,
				Description: "Go (RE2) regular expression to scan for",
				Required:    true,
				MinLength:   1,
			},
			"path": {
				Type:        ParamTypeString,
				Description: "Subtree to scan, relative to the repository root (whole tree if omitted)",
				Required:    false,
				Default:     ".",
			},
			"extension": {
				Type:        ParamTypeString,
				Description: "Only scan files with this extension, e.g. \".go\" (all files if omitted)",
				Required:    false,
			},
		},
		Phase:   PhaseSearch,
		Timeout: 2 * time.Minute,
	}
}

// Execute runs the scan.
func (t *validatePatternTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	root, err := env.Context.RepositoryPath()
	if err != nil {
		return nil, err
	}

	pattern := stringParam(params, "pattern", "")
	re, err := regexp.Compile(pattern)
	if err != nil {
		msg := fmt.Sprintf("invalid regular expression: %v", err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	rel := stringParam(params, "path", ".")
	start, err := resolveInRepo(root, rel)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}
	ext := stringParam(params, "extension", "")

	output := ValidatePatternOutput{Pattern: pattern}
	walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ext != "" && !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > t.maxFileBytes {
			return nil
		}

		matched, err := t.scanFile(path, root, re, &output)
		if err != nil {
			return nil
		}
		output.FilesScanned++
		if matched && len(output.Matches) >= t.maxMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return nil, fmt.Errorf("scan repository: %w", walkErr)
	}

	var sb strings.Builder
	if len(output.Matches) == 0 {
		sb.WriteString(fmt.Sprintf("No occurrences of %q in %d files.\n", pattern, output.FilesScanned))
	} else {
		sb.WriteString(fmt.Sprintf("%d occurrences of %q:\n\n", len(output.Matches), pattern))
		for _, m := range output.Matches {
			sb.WriteString(fmt.Sprintf("%s:%d: %s\n", m.FilePath, m.Line, m.Text))
		}
		if len(output.Matches) >= t.maxMatches {
			sb.WriteString(fmt.Sprintf("\n(stopped at %d matches)\n", t.maxMatches))
		}
	}

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: sb.String(),
	}, nil
}

// scanFile scans one file, appending matches. Returns true if any line
// matched.
func (t *validatePatternTool) scanFile(path, root string, re *regexp.Regexp, output *ValidatePatternOutput) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	matched := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		matched = true
		output.Matches = append(output.Matches, PatternMatch{
			FilePath: repoRelative(root, path),
			Line:     line,
			Text:     strings.TrimSpace(text),
		})
		if len(output.Matches) >= t.maxMatches {
			break
		}
	}
	return matched, scanner.Err()
}
