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
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// build_index / search_code Tools
// =============================================================================
//
// Both tools are thin clients for the external semantic index service. The
// agent core deliberately knows nothing about embeddings or chunking; it
// hands the service a path (build) or a query (search) and relays the
// response as an observation.

// IndexClient is the HTTP client shared by the index tools.
//
// Thread Safety: Safe for concurrent use.
type IndexClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewIndexClient creates a client for the index service at baseURL.
func NewIndexClient(baseURL string, httpClient *http.Client) *IndexClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &IndexClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  slog.Default(),
	}
}

// postJSON sends a JSON request and decodes the JSON response into out.
func (c *IndexClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("index service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("index service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// BuildIndexOutput contains the structured result of an index build.
type BuildIndexOutput struct {
	// IndexID identifies the built index on the service.
	IndexID string `json:"index_id"`

	// FilesIndexed is the number of source files ingested.
	FilesIndexed int `json:"files_indexed"`

	// Chunks is the number of chunks embedded.
	Chunks int `json:"chunks"`
}

// buildIndexTool asks the index service to ingest the cloned repository.
type buildIndexTool struct {
	client *IndexClient
}

// NewBuildIndexTool creates the build_index tool.
func NewBuildIndexTool(client *IndexClient) Tool {
	return &buildIndexTool{client: client}
}

func (t *buildIndexTool) Name() string {
	return "build_index"
}

func (t *buildIndexTool) Definition() Definition {
	return Definition{
		Name: "build_index",
		Usage: "Build a semantic code index over the cloned repository. " +
			"Run this once after cloning; search_code requires it. " +
			"Requires a cloned repository.",
		Parameters:  map[string]ParamDef{},
		Phase:       PhaseSetup,
		SideEffects: true,
		Timeout:     10 * time.Minute,
	}
}

// Execute triggers the index build.
func (t *buildIndexTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	path, err := env.Context.RepositoryPath()
	if err != nil {
		return nil, err
	}

	env.Progress("Building semantic index ...")

	var out BuildIndexOutput
	req := map[string]string{"path": path, "repository_url": env.Context.RepositoryURL()}
	if err := t.client.postJSON(ctx, "/v1/index", req, &out); err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}

	env.Progress("Index ready")
	return &Result{
		Success: true,
		Output:  out,
		OutputText: fmt.Sprintf("Indexed %d files (%d chunks); index id %s",
			out.FilesIndexed, out.Chunks, out.IndexID),
	}, nil
}

// SearchHit is one semantic search match.
type SearchHit struct {
	// FilePath is the matching file, relative to the repository root.
	FilePath string `json:"file_path"`

	// LineStart and LineEnd bound the matching chunk.
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`

	// Score is the similarity score in [0, 1].
	Score float64 `json:"score"`

	// Snippet is the matching code excerpt.
	Snippet string `json:"snippet"`
}

// SearchCodeOutput contains the structured search result.
type SearchCodeOutput struct {
	// Query is the search query as issued.
	Query string `json:"query"`

	// Hits are the matches, best first.
	Hits []SearchHit `json:"hits"`
}

// searchCodeTool queries the semantic index.
type searchCodeTool struct {
	client *IndexClient
}

// NewSearchCodeTool creates the search_code tool.
func NewSearchCodeTool(client *IndexClient) Tool {
	return &searchCodeTool{client: client}
}

func (t *searchCodeTool) Name() string {
	return "search_code"
}

func (t *searchCodeTool) Definition() Definition {
	return Definition{
		Name: "search_code",
		Usage: "Semantically search the indexed repository for code matching a natural-language " +
			"description, e.g. \"SQL query built by string concatenation\". " +
			"Requires a cloned and indexed repository.",
		Parameters: map[string]ParamDef{
			"query": {
				Type:        ParamTypeString,
				Description: "Natural-language description of the code to find",
				Required:    true,
				MinLength:   3,
			},
			"limit": {
				Type:        ParamTypeInt,
				Description: "Maximum number of hits to return (default 10)",
				Required:    false,
				Default:     10,
				Minimum:     floatPtr(1),
				Maximum:     floatPtr(50),
			},
		},
		Phase: PhaseSearch,
	}
}

// Execute runs the search.
func (t *searchCodeTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	path, err := env.Context.RepositoryPath()
	if err != nil {
		return nil, err
	}

	query := stringParam(params, "query", "")
	limit := intParam(params, "limit", 10)

	var out SearchCodeOutput
	req := map[string]any{"path": path, "query": query, "limit": limit}
	if err := t.client.postJSON(ctx, "/v1/search", req, &out); err != nil {
		return &Result{Success: false, Error: err.Error(), OutputText: err.Error()}, nil
	}
	out.Query = query

	var sb strings.Builder
	if len(out.Hits) == 0 {
		sb.WriteString(fmt.Sprintf("No matches for %q.\n", query))
	} else {
		sb.WriteString(fmt.Sprintf("%d matches for %q:\n\n", len(out.Hits), query))
		for _, hit := range out.Hits {
			sb.WriteString(fmt.Sprintf("%s:%d-%d (score %.2f)\n", hit.FilePath, hit.LineStart, hit.LineEnd, hit.Score))
			if hit.Snippet != "" {
				sb.WriteString(indent(hit.Snippet, "  "))
				sb.WriteString("\n")
			}
		}
	}

	return &Result{
		Success:    true,
		Output:     out,
		OutputText: sb.String(),
	}, nil
}

// indent prefixes every line of s with prefix.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
