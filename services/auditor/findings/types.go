// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package findings provides the embedded store for vulnerability analyses
// and their recorded findings.
//
// The store is BadgerDB-backed: low-latency local persistence with no
// external dependency, which is all the audit agent needs. Keys are laid
// out as
//
//	analysis:<analysisID>           -> Analysis (JSON)
//	finding:<analysisID>:<findingID> -> Finding (JSON)
//
// so the findings of one analysis are a single prefix scan.
package findings

import "time"

// Severity classifies how serious a recorded finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ValidSeverity reports whether s is one of the recognized severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// AnalysisStatus tracks the lifecycle of an analysis record.
type AnalysisStatus string

const (
	// AnalysisOpen means findings can still be recorded.
	AnalysisOpen AnalysisStatus = "open"

	// AnalysisClosed means a report has been generated and the record
	// is frozen.
	AnalysisClosed AnalysisStatus = "closed"
)

// Analysis is one vulnerability assessment run over a repository.
type Analysis struct {
	// ID uniquely identifies the analysis.
	ID string `json:"id"`

	// RepositoryURL is the origin of the repository under assessment.
	RepositoryURL string `json:"repository_url"`

	// SessionID is the conversation that opened this analysis.
	SessionID string `json:"session_id"`

	// Status is the lifecycle state.
	Status AnalysisStatus `json:"status"`

	// CreatedAt is when the analysis was opened.
	CreatedAt time.Time `json:"created_at"`

	// ClosedAt is when the analysis was closed (zero while open).
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// Finding is one recorded vulnerability observation within an analysis.
type Finding struct {
	// ID uniquely identifies the finding.
	ID string `json:"id"`

	// AnalysisID is the owning analysis.
	AnalysisID string `json:"analysis_id"`

	// Title is a short human-readable summary.
	Title string `json:"title"`

	// Description explains the vulnerability and its impact.
	Description string `json:"description"`

	// Severity classifies the finding.
	Severity Severity `json:"severity"`

	// FilePath is the affected file, relative to the repository root.
	FilePath string `json:"file_path,omitempty"`

	// LineStart and LineEnd bound the affected region (0 if unknown).
	LineStart int `json:"line_start,omitempty"`
	LineEnd   int `json:"line_end,omitempty"`

	// CWE is the weakness classification, e.g. "CWE-89".
	CWE string `json:"cwe,omitempty"`

	// Evidence is the code excerpt or pattern match backing the finding.
	Evidence string `json:"evidence,omitempty"`

	// CreatedAt is when the finding was recorded.
	CreatedAt time.Time `json:"created_at"`
}
