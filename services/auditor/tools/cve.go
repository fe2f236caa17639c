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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// lookup_cve Tool
// =============================================================================

// defaultOSVEndpoint is the public OSV query API.
const defaultOSVEndpoint = "https://api.osv.dev/v1/query"

// Vulnerability is one advisory returned by the vulnerability database.
type Vulnerability struct {
	// ID is the advisory identifier (CVE-..., GHSA-..., GO-...).
	ID string `json:"id"`

	// Summary is the one-line description.
	Summary string `json:"summary"`

	// Details is the full advisory text.
	Details string `json:"details,omitempty"`

	// Aliases are alternate identifiers for the same advisory.
	Aliases []string `json:"aliases,omitempty"`
}

// LookupCVEOutput contains the structured lookup result.
type LookupCVEOutput struct {
	// Package is the queried package name.
	Package string `json:"package"`

	// Ecosystem is the queried package ecosystem.
	Ecosystem string `json:"ecosystem"`

	// Version is the queried version, if any.
	Version string `json:"version,omitempty"`

	// Vulnerabilities are the known advisories.
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// lookupCVETool queries the OSV database for known advisories against a
// dependency of the repository under assessment.
//
// Thread Safety: Safe for concurrent use.
type lookupCVETool struct {
	endpoint string
	http     *http.Client
}

// NewLookupCVETool creates the lookup_cve tool. An empty endpoint selects
// the public OSV API.
func NewLookupCVETool(endpoint string, httpClient *http.Client) Tool {
	if endpoint == "" {
		endpoint = defaultOSVEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &lookupCVETool{endpoint: endpoint, http: httpClient}
}

func (t *lookupCVETool) Name() string {
	return "lookup_cve"
}

func (t *lookupCVETool) Definition() Definition {
	return Definition{
		Name: "lookup_cve",
		Usage: "Look up known vulnerability advisories (CVE/GHSA) for a dependency by " +
			"package name, ecosystem, and optionally version. Use this after spotting a " +
			"dependency in a manifest file.",
		Parameters: map[string]ParamDef{
			"package": {
				Type:        ParamTypeString,
				Description: "Package name as it appears in the ecosystem's registry",
				Required:    true,
				MinLength:   1,
			},
			"ecosystem": {
				Type:        ParamTypeString,
				Description: "Package ecosystem",
				Required:    true,
				Enum:        []any{"Go", "npm", "PyPI", "Maven", "crates.io", "RubyGems", "NuGet", "Packagist"},
			},
			"version": {
				Type:        ParamTypeString,
				Description: "Exact version to check (all known advisories if omitted)",
				Required:    false,
			},
		},
		Phase:   PhaseSearch,
		Timeout: 30 * time.Second,
	}
}

// osvQuery is the OSV /v1/query request shape.
type osvQuery struct {
	Version string `json:"version,omitempty"`
	Package struct {
		Name      string `json:"name"`
		Ecosystem string `json:"ecosystem"`
	} `json:"package"`
}

// osvResponse is the subset of the OSV response the agent relays.
type osvResponse struct {
	Vulns []struct {
		ID      string   `json:"id"`
		Summary string   `json:"summary"`
		Details string   `json:"details"`
		Aliases []string `json:"aliases"`
	} `json:"vulns"`
}

// Execute queries the vulnerability database.
func (t *lookupCVETool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	pkg := stringParam(params, "package", "")
	ecosystem := stringParam(params, "ecosystem", "")
	version := stringParam(params, "version", "")

	env.Progress(fmt.Sprintf("Querying advisories for %s/%s ...", ecosystem, pkg))

	query := osvQuery{Version: version}
	query.Package.Name = pkg
	query.Package.Ecosystem = ecosystem

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		msg := fmt.Sprintf("vulnerability database unreachable: %v", err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("vulnerability database returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	var osv osvResponse
	if err := json.NewDecoder(resp.Body).Decode(&osv); err != nil {
		msg := fmt.Sprintf("decode advisory response: %v", err)
		return &Result{Success: false, Error: msg, OutputText: msg}, nil
	}

	output := LookupCVEOutput{Package: pkg, Ecosystem: ecosystem, Version: version}
	for _, v := range osv.Vulns {
		output.Vulnerabilities = append(output.Vulnerabilities, Vulnerability{
			ID:      v.ID,
			Summary: v.Summary,
			Details: v.Details,
			Aliases: v.Aliases,
		})
	}

	var sb strings.Builder
	if len(output.Vulnerabilities) == 0 {
		sb.WriteString(fmt.Sprintf("No known advisories for %s/%s", ecosystem, pkg))
		if version != "" {
			sb.WriteString(" " + version)
		}
		sb.WriteString(".\n")
	} else {
		sb.WriteString(fmt.Sprintf("%d advisories for %s/%s:\n\n", len(output.Vulnerabilities), ecosystem, pkg))
		for _, v := range output.Vulnerabilities {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", v.ID, v.Summary))
			if len(v.Aliases) > 0 {
				sb.WriteString(fmt.Sprintf("  Aliases: %s\n", strings.Join(v.Aliases, ", ")))
			}
		}
	}

	return &Result{
		Success:    true,
		Output:     output,
		OutputText: sb.String(),
	}, nil
}
