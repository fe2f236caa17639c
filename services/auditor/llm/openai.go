// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	// BaseURL is the API endpoint. Any OpenAI-compatible server works
	// (vLLM, llama.cpp, Ollama's compatibility endpoint).
	BaseURL string

	// APIKey authenticates requests. May be empty for local servers.
	APIKey string

	// Model is the default model name.
	Model string

	// Temperature is the default sampling temperature.
	Temperature float32

	// MaxTokens is the default completion bound (0 = provider default).
	MaxTokens int
}

// OpenAIProvider implements Provider against any OpenAI-compatible chat
// completions API.
//
// Thread Safety: Safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIProvider creates the provider.
//
// Inputs:
//
//	cfg - Provider configuration. Model must be non-empty.
//
// Outputs:
//
//	*OpenAIProvider - The provider.
//	error - Non-nil if the configuration is invalid.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: slog.Default(),
	}, nil
}

// Name identifies the provider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// ChatStream runs one streaming chat call.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onToken TokenSink) (*Completion, error) {
	if onToken == nil {
		onToken = func(string) {}
	}

	oaReq := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		Stream:      true,
	}
	if req.Model != "" {
		oaReq.Model = req.Model
	}
	if req.Temperature != 0 {
		oaReq.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		oaReq.MaxTokens = req.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, oaReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer stream.Close()

	var content strings.Builder
	calls := map[int]*ToolCall{}
	finishReason := ""

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: stream receive: %v", ErrUnavailable, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			onToken(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &ToolCall{}
				calls[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name += tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	completion := &Completion{
		Content:      content.String(),
		FinishReason: finishReason,
	}

	indices := make([]int, 0, len(calls))
	for i := range calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		completion.ToolCalls = append(completion.ToolCalls, *calls[i])
	}

	p.logger.Debug("Chat completion finished",
		"model", oaReq.Model,
		"finish_reason", finishReason,
		"tool_calls", len(completion.ToolCalls),
	)
	return completion, nil
}

// toOpenAIMessages converts provider-neutral messages to the wire shape.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oa := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			oa.ToolCalls = append(oa.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, oa)
	}
	return out
}

// toOpenAITools converts tool definitions to JSON Schema function specs.
func toOpenAITools(defs []tools.Definition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for i := range defs {
		def := defs[i]
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Usage,
				Parameters:  toJSONSchema(&def),
			},
		})
	}
	return out
}

// toJSONSchema renders a Definition's parameters as a JSON Schema object.
func toJSONSchema(def *tools.Definition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	for name, p := range def.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.MinLength > 0 {
			prop["minLength"] = p.MinLength
		}
		if p.MaxLength > 0 {
			prop["maxLength"] = p.MaxLength
		}
		properties[name] = prop
	}

	required := def.RequiredParams()
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
