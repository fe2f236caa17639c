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
	"net/http"

	"github.com/AleutianAI/AleutianAudit/services/auditor/findings"
)

// CatalogConfig wires the external collaborators the default toolset needs.
type CatalogConfig struct {
	// Store is the findings store. Must not be nil.
	Store *findings.Store

	// IndexBaseURL is the semantic index service address. Empty disables
	// build_index and search_code.
	IndexBaseURL string

	// OSVEndpoint overrides the vulnerability database endpoint (public
	// OSV API if empty).
	OSVEndpoint string

	// HTTPClient is shared by the HTTP-backed tools. Defaults apply if nil.
	HTTPClient *http.Client
}

// RegisterCatalog registers the full default toolset on a registry.
//
// Description:
//
//	Registers the assessment toolset: clone_repository, open_analysis,
//	build_index (setup); list_directory, read_file (exploration);
//	search_code, lookup_cve, validate_pattern (search); record_finding,
//	generate_report (reporting).
func RegisterCatalog(r *Registry, cfg CatalogConfig) {
	r.Register(NewCloneTool())
	r.Register(NewOpenAnalysisTool(cfg.Store))
	r.Register(NewListDirectoryTool())
	r.Register(NewReadFileTool())
	r.Register(NewValidatePatternTool())
	r.Register(NewLookupCVETool(cfg.OSVEndpoint, cfg.HTTPClient))
	r.Register(NewRecordFindingTool(cfg.Store))
	r.Register(NewGenerateReportTool(cfg.Store))

	if cfg.IndexBaseURL != "" {
		client := NewIndexClient(cfg.IndexBaseURL, cfg.HTTPClient)
		r.Register(NewBuildIndexTool(client))
		r.Register(NewSearchCodeTool(client))
	}
}
