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
	"fmt"
	"path/filepath"
	"strings"
)

// parseStringParam extracts a string from a raw parameter value.
func parseStringParam(raw any) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

// parseIntParam extracts an int from a raw parameter value, accepting the
// float64 form JSON decoding produces.
func parseIntParam(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// stringParam returns params[name] as a string, or def when absent.
func stringParam(params map[string]any, name, def string) string {
	if raw, ok := params[name]; ok {
		if s, ok := parseStringParam(raw); ok {
			return s
		}
	}
	return def
}

// intParam returns params[name] as an int, or def when absent.
func intParam(params map[string]any, name string, def int) int {
	if raw, ok := params[name]; ok {
		if n, ok := parseIntParam(raw); ok {
			return n
		}
	}
	return def
}

// resolveInRepo joins a model-supplied relative path onto the repository
// root and rejects escapes. Tool inputs come from a language model, so a
// "../../etc/passwd" must never resolve outside the clone.
func resolveInRepo(repoRoot, rel string) (string, error) {
	cleaned := filepath.Clean("/" + rel)
	abs := filepath.Join(repoRoot, cleaned)
	if abs != repoRoot && !strings.HasPrefix(abs, repoRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the repository root", rel)
	}
	return abs, nil
}
