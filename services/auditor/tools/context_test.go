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
	"testing"
)

func TestExecutionContext_Repository(t *testing.T) {
	t.Run("unset repository yields missing context", func(t *testing.T) {
		ec := NewExecutionContext()
		_, err := ec.RepositoryPath()
		if !errors.Is(err, ErrMissingContext) {
			t.Errorf("Expected ErrMissingContext, got %v", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		ec := NewExecutionContext()
		ec.SetRepository("/tmp/work/repo", "https://example.com/repo.git")

		path, err := ec.RepositoryPath()
		if err != nil {
			t.Fatalf("RepositoryPath failed: %v", err)
		}
		if path != "/tmp/work/repo" {
			t.Errorf("RepositoryPath() = %q", path)
		}
		if ec.RepositoryURL() != "https://example.com/repo.git" {
			t.Errorf("RepositoryURL() = %q", ec.RepositoryURL())
		}
	})
}

func TestExecutionContext_Analysis(t *testing.T) {
	ec := NewExecutionContext()

	_, err := ec.AnalysisID()
	if !errors.Is(err, ErrMissingContext) {
		t.Errorf("Expected ErrMissingContext, got %v", err)
	}

	ec.SetAnalysisID("an-123")
	id, err := ec.AnalysisID()
	if err != nil {
		t.Fatalf("AnalysisID failed: %v", err)
	}
	if id != "an-123" {
		t.Errorf("AnalysisID() = %q", id)
	}
}

func TestExecutionContext_Release(t *testing.T) {
	t.Run("hooks run in registration order", func(t *testing.T) {
		ec := NewExecutionContext()
		var order []int
		ec.OnRelease(func() error { order = append(order, 1); return nil })
		ec.OnRelease(func() error { order = append(order, 2); return nil })

		if err := ec.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("Hook order = %v", order)
		}
	})

	t.Run("failing hook does not stop the rest", func(t *testing.T) {
		ec := NewExecutionContext()
		ran := false
		ec.OnRelease(func() error { return fmt.Errorf("cleanup failed") })
		ec.OnRelease(func() error { ran = true; return nil })

		err := ec.Release()
		if err == nil {
			t.Error("Expected first hook error to be reported")
		}
		if !ran {
			t.Error("Second hook did not run")
		}
	})

	t.Run("release clears state and is idempotent", func(t *testing.T) {
		ec := NewExecutionContext()
		ec.SetRepository("/tmp/repo", "https://example.com/r.git")
		ec.SetAnalysisID("an-1")
		calls := 0
		ec.OnRelease(func() error { calls++; return nil })

		if err := ec.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if _, err := ec.RepositoryPath(); !errors.Is(err, ErrMissingContext) {
			t.Error("Repository path survived release")
		}
		if _, err := ec.AnalysisID(); !errors.Is(err, ErrMissingContext) {
			t.Error("Analysis ID survived release")
		}

		if err := ec.Release(); err != nil {
			t.Fatalf("Second Release failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("Hook ran %d times, want 1", calls)
		}
	})
}
