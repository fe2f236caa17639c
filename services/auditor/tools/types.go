// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and invocation framework for the
// audit agent.
//
// Tools are the mechanism by which the agent acts on a repository under
// assessment: cloning it, indexing it, searching it, validating suspected
// vulnerability patterns, and recording findings. Each tool is described by
// a Definition (name, usage guidance for the model, parameter schema) and
// implements the Tool interface. The Dispatcher mediates every call:
// arguments are validated against the schema before the tool body runs, and
// any failure inside the body is converted into a failed Result rather than
// propagated, so a single broken tool can never take down the reasoning
// loop.
//
// Thread Safety:
//
//	All exported types in this package are safe for concurrent use.
package tools

import (
	"context"
	"time"
)

// Phase groups tools by the stage of an assessment they belong to.
//
// The ordering of phases is a selection hint for the language model
// (setup tools are listed before exploration, exploration before search,
// and so on). It is not an enforced gate: the missing-context errors on
// the ExecutionContext are what actually encode "clone before index
// before search".
type Phase string

const (
	// PhaseSetup covers repository acquisition and analysis bootstrap.
	PhaseSetup Phase = "setup"

	// PhaseExploration covers tools that inspect the cloned tree.
	PhaseExploration Phase = "exploration"

	// PhaseSearch covers semantic search, CVE lookup, and validation.
	PhaseSearch Phase = "search"

	// PhaseReporting covers finding persistence and report generation.
	PhaseReporting Phase = "reporting"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// phaseOrder fixes the catalog ordering presented to the model.
var phaseOrder = []Phase{PhaseSetup, PhaseExploration, PhaseSearch, PhaseReporting}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeInt is an integer parameter.
	ParamTypeInt ParamType = "integer"

	// ParamTypeFloat is a floating-point parameter.
	ParamTypeFloat ParamType = "number"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"

	// ParamTypeArray is an array parameter.
	ParamTypeArray ParamType = "array"

	// ParamTypeObject is an object parameter.
	ParamTypeObject ParamType = "object"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Default is the default value if not provided.
	Default any `json:"default,omitempty"`

	// Enum restricts values to a set of options.
	Enum []any `json:"enum,omitempty"`

	// MinLength is the minimum string length (for string type).
	MinLength int `json:"minLength,omitempty"`

	// MaxLength is the maximum string length (for string type).
	MaxLength int `json:"maxLength,omitempty"`

	// Minimum is the minimum value (for numeric types).
	Minimum *float64 `json:"minimum,omitempty"`

	// Maximum is the maximum value (for numeric types).
	Maximum *float64 `json:"maximum,omitempty"`
}

// Definition describes a tool's interface for the language model.
//
// The structure serializes to the JSON Schema shape expected by LLM
// tool-calling APIs. Usage is the natural-language contract the model
// reads when deciding whether to select the tool; the core never
// interprets it.
type Definition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Usage explains when and why the agent should call this tool.
	Usage string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Phase is the assessment stage the tool belongs to.
	Phase Phase `json:"phase"`

	// SideEffects indicates if the tool mutates external state.
	SideEffects bool `json:"side_effects"`

	// Timeout overrides the dispatcher's default execution timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns the names of all required parameters.
func (d *Definition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// ProgressSink receives free-form status strings emitted by a tool body
// while it runs. The core does not interpret the content; it relays each
// message to the client as a progress event. Implementations must be safe
// to call from any goroutine. A nil-safe no-op sink is used when the
// caller does not care about progress.
type ProgressSink func(message string)

// Env is the per-invocation environment handed to a tool body.
//
// It carries the session's ExecutionContext (the only mutable state shared
// across tool calls within one conversation) and the progress side-channel
// for the current execution.
type Env struct {
	// Context is the owning session's execution context. Never nil.
	Context *ExecutionContext

	// Progress relays status strings to the client. Never nil.
	Progress ProgressSink
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use across sessions and must
// not panic past their own boundary; the Dispatcher converts panics into
// failed Results as a backstop, but a well-behaved tool reports failure
// through the Result.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Definition returns the tool's schema and usage contract.
	Definition() Definition

	// Execute runs the tool with already-validated parameters.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   params - Input parameters (validated against Definition before call).
	//   env - Execution context and progress sink for this invocation.
	//
	// Outputs:
	//   *Result - Execution outcome. A declined operation is reported as
	//             Success=false, not as an error.
	//   error - Non-nil only for unexpected internal failures.
	Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error)
}

// FailureKind classifies why a tool invocation failed.
//
// The reasoning loop treats every kind identically (the failure is folded
// back into the conversation as an observation), but the kind is preserved
// on the Result so that telemetry can distinguish a tool that crashed from
// a tool that declined.
type FailureKind string

const (
	// FailureUnknownTool means the requested tool is not registered.
	FailureUnknownTool FailureKind = "unknown_tool"

	// FailureInvalidArguments means schema validation rejected the call.
	FailureInvalidArguments FailureKind = "invalid_arguments"

	// FailureMissingContext means a required execution-context value
	// (repository location, active analysis) was never set.
	FailureMissingContext FailureKind = "missing_context"

	// FailureExecution means the tool ran and reported failure.
	FailureExecution FailureKind = "execution"

	// FailurePanic means the tool body panicked and was recovered.
	FailurePanic FailureKind = "panic"
)

// Result contains the outcome of a tool invocation.
type Result struct {
	// Success indicates if the tool succeeded.
	Success bool `json:"success"`

	// Output is the tool's structured output data. The core treats it as
	// an opaque serializable value.
	Output any `json:"output,omitempty"`

	// OutputText is the text representation fed back to the model as an
	// observation.
	OutputText string `json:"output_text"`

	// Error contains the failure message when Success is false.
	Error string `json:"error,omitempty"`

	// Kind classifies the failure when Success is false.
	Kind FailureKind `json:"kind,omitempty"`

	// Duration is how long execution took.
	Duration time.Duration `json:"duration"`

	// Truncated indicates if OutputText was truncated.
	Truncated bool `json:"truncated"`
}

// Summary returns a short, single-line digest of the result suitable for
// a tool_end stream event.
func (r *Result) Summary() string {
	const maxSummary = 200

	text := r.OutputText
	if !r.Success {
		text = "error: " + r.Error
	}
	for i, c := range text {
		if c == '\n' {
			text = text[:i]
			break
		}
	}
	if len(text) > maxSummary {
		return text[:maxSummary] + "..."
	}
	return text
}

// Failed builds a failed Result with the given kind and message.
func Failed(kind FailureKind, msg string) *Result {
	return &Result{
		Success:    false,
		OutputText: msg,
		Error:      msg,
		Kind:       kind,
	}
}

// Invocation represents a pending or completed tool call issued by the
// reasoning loop.
type Invocation struct {
	// ID is a unique identifier for this invocation.
	ID string `json:"id"`

	// ToolName is the tool to invoke.
	ToolName string `json:"tool_name"`

	// Parameters are the raw input parameters from the model.
	Parameters map[string]any `json:"parameters"`

	// StartedAt is when execution started.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when execution completed.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result contains the outcome (after completion).
	Result *Result `json:"result,omitempty"`
}

// ValidationError represents a parameter validation failure.
type ValidationError struct {
	// Parameter is the parameter name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`

	// Expected describes what was expected.
	Expected string `json:"expected,omitempty"`

	// Actual describes what was received.
	Actual string `json:"actual,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Expected != "" && e.Actual != "" {
		return e.Parameter + ": " + e.Message + " (expected " + e.Expected + ", got " + e.Actual + ")"
	}
	return e.Parameter + ": " + e.Message
}

// DispatcherOptions configures the tool dispatcher.
type DispatcherOptions struct {
	// DefaultTimeout bounds a single tool execution.
	DefaultTimeout time.Duration

	// MaxOutputChars limits the observation size fed back to the model.
	MaxOutputChars int
}

// DefaultDispatcherOptions returns production defaults.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		DefaultTimeout: 60 * time.Second,
		MaxOutputChars: 16000,
	}
}
