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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/auditor/findings"
)

// =============================================================================
// open_analysis / record_finding / generate_report Tools
// =============================================================================
//
// The reporting tools are the persistence surface of an assessment. They
// share the findings store; the active analysis id flows through the
// execution context so record_finding and generate_report do not need the
// model to repeat it.

// openAnalysisTool opens a new analysis record for the cloned repository.
type openAnalysisTool struct {
	store *findings.Store
}

// NewOpenAnalysisTool creates the open_analysis tool.
func NewOpenAnalysisTool(store *findings.Store) Tool {
	return &openAnalysisTool{store: store}
}

func (t *openAnalysisTool) Name() string {
	return "open_analysis"
}

func (t *openAnalysisTool) Definition() Definition {
	return Definition{
		Name: "open_analysis",
		Usage: "Open an analysis record for the cloned repository. Findings can only be " +
			"recorded into an open analysis, so call this before record_finding. " +
			"Requires a cloned repository.",
		Parameters:  map[string]ParamDef{},
		Phase:       PhaseSetup,
		SideEffects: true,
	}
}

// Execute opens the analysis and records its id on the execution context.
func (t *openAnalysisTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	if _, err := env.Context.RepositoryPath(); err != nil {
		return nil, err
	}

	analysis, err := t.store.OpenAnalysis(env.Context.RepositoryURL(), "")
	if err != nil {
		return nil, fmt.Errorf("open analysis: %w", err)
	}
	env.Context.SetAnalysisID(analysis.ID)

	return &Result{
		Success:    true,
		Output:     analysis,
		OutputText: fmt.Sprintf("Opened analysis %s for %s", analysis.ID, analysis.RepositoryURL),
	}, nil
}

// recordFindingTool persists one vulnerability finding.
type recordFindingTool struct {
	store *findings.Store
}

// NewRecordFindingTool creates the record_finding tool.
func NewRecordFindingTool(store *findings.Store) Tool {
	return &recordFindingTool{store: store}
}

func (t *recordFindingTool) Name() string {
	return "record_finding"
}

func (t *recordFindingTool) Definition() Definition {
	return Definition{
		Name: "record_finding",
		Usage: "Record a confirmed vulnerability finding into the open analysis. " +
			"Only record findings you have validated with concrete evidence " +
			"(read_file or validate_pattern output). Requires an open analysis.",
		Parameters: map[string]ParamDef{
			"title": {
				Type:        ParamTypeString,
				Description: "Short summary of the vulnerability",
				Required:    true,
				MinLength:   5,
				MaxLength:   200,
			},
			"description": {
				Type:        ParamTypeString,
				Description: "Full explanation of the vulnerability and its impact",
				Required:    true,
				MinLength:   20,
			},
			"severity": {
				Type:        ParamTypeString,
				Description: "Severity classification",
				Required:    true,
				Enum:        []any{"critical", "high", "medium", "low", "info"},
			},
			"file_path": {
				Type:        ParamTypeString,
				Description: "Affected file, relative to the repository root",
				Required:    false,
			},
			"line_start": {
				Type:        ParamTypeInt,
				Description: "First affected line",
				Required:    false,
				Minimum:     floatPtr(1),
			},
			"line_end": {
				Type:        ParamTypeInt,
				Description: "Last affected line",
				Required:    false,
				Minimum:     floatPtr(1),
			},
			"cwe": {
				Type:        ParamTypeString,
				Description: "Weakness classification, e.g. CWE-89",
				Required:    false,
			},
			"evidence": {
				Type:        ParamTypeString,
				Description: "Code excerpt or pattern-match output backing the finding",
				Required:    false,
			},
		},
		Phase:       PhaseReporting,
		SideEffects: true,
	}
}

// Execute records the finding.
func (t *recordFindingTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	analysisID, err := env.Context.AnalysisID()
	if err != nil {
		return nil, err
	}

	finding := &findings.Finding{
		AnalysisID:  analysisID,
		Title:       stringParam(params, "title", ""),
		Description: stringParam(params, "description", ""),
		Severity:    findings.Severity(stringParam(params, "severity", "")),
		FilePath:    stringParam(params, "file_path", ""),
		LineStart:   intParam(params, "line_start", 0),
		LineEnd:     intParam(params, "line_end", 0),
		CWE:         stringParam(params, "cwe", ""),
		Evidence:    stringParam(params, "evidence", ""),
	}

	recorded, err := t.store.RecordFinding(finding)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}

	env.Progress(fmt.Sprintf("Recorded %s finding: %s", recorded.Severity, recorded.Title))
	return &Result{
		Success:    true,
		Output:     recorded,
		OutputText: fmt.Sprintf("Recorded finding %s (%s): %s", recorded.ID, recorded.Severity, recorded.Title),
	}, nil
}

// generateReportTool renders the open analysis's findings as a report and
// closes the analysis.
type generateReportTool struct {
	store *findings.Store
}

// NewGenerateReportTool creates the generate_report tool.
func NewGenerateReportTool(store *findings.Store) Tool {
	return &generateReportTool{store: store}
}

func (t *generateReportTool) Name() string {
	return "generate_report"
}

func (t *generateReportTool) Definition() Definition {
	return Definition{
		Name: "generate_report",
		Usage: "Generate the final assessment report from all recorded findings and close " +
			"the analysis. Call this once, at the end, after every finding has been " +
			"recorded. Requires an open analysis.",
		Parameters:  map[string]ParamDef{},
		Phase:       PhaseReporting,
		SideEffects: true,
	}
}

// severityOrder fixes the report section ordering, worst first.
var severityOrder = []findings.Severity{
	findings.SeverityCritical,
	findings.SeverityHigh,
	findings.SeverityMedium,
	findings.SeverityLow,
	findings.SeverityInfo,
}

// Execute renders the report.
func (t *generateReportTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	analysisID, err := env.Context.AnalysisID()
	if err != nil {
		return nil, err
	}

	list, err := t.store.ListFindings(analysisID)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}
	analysis, err := t.store.CloseAnalysis(analysisID)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}

	report := renderReport(analysis, list)
	env.Progress("Report generated")

	return &Result{
		Success: true,
		Output: map[string]any{
			"analysis_id":   analysis.ID,
			"finding_count": len(list),
			"report":        report,
		},
		OutputText: report,
	}, nil
}

// renderReport formats the findings as a Markdown report.
func renderReport(analysis *findings.Analysis, list []*findings.Finding) string {
	var sb strings.Builder
	sb.WriteString("# Vulnerability Assessment Report\n\n")
	sb.WriteString(fmt.Sprintf("Repository: %s\n", analysis.RepositoryURL))
	sb.WriteString(fmt.Sprintf("Analysis: %s\n", analysis.ID))
	sb.WriteString(fmt.Sprintf("Date: %s\n\n", analysis.CreatedAt.Format(time.DateOnly)))

	if len(list) == 0 {
		sb.WriteString("No findings were recorded.\n")
		return sb.String()
	}

	bySeverity := make(map[findings.Severity][]*findings.Finding)
	for _, f := range list {
		bySeverity[f.Severity] = append(bySeverity[f.Severity], f)
	}

	sb.WriteString("## Summary\n\n")
	for _, sev := range severityOrder {
		if n := len(bySeverity[sev]); n > 0 {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", sev, n))
		}
	}
	sb.WriteString("\n## Findings\n\n")

	for _, sev := range severityOrder {
		for _, f := range bySeverity[sev] {
			sb.WriteString(fmt.Sprintf("### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title))
			if f.FilePath != "" {
				if f.LineStart > 0 {
					sb.WriteString(fmt.Sprintf("Location: %s:%d", f.FilePath, f.LineStart))
					if f.LineEnd > f.LineStart {
						sb.WriteString(fmt.Sprintf("-%d", f.LineEnd))
					}
					sb.WriteString("\n")
				} else {
					sb.WriteString(fmt.Sprintf("Location: %s\n", f.FilePath))
				}
			}
			if f.CWE != "" {
				sb.WriteString(fmt.Sprintf("Classification: %s\n", f.CWE))
			}
			sb.WriteString("\n" + f.Description + "\n\n")
			if f.Evidence != "" {
				sb.WriteString("Evidence:\n\n```\n" + strings.TrimRight(f.Evidence, "\n") + "\n```\n\n")
			}
		}
	}

	return sb.String()
}
