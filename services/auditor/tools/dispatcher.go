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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the dispatcher. These are carried on failed Results
// as messages; Invoke itself only returns an error for programming
// mistakes (nil invocation).
var (
	// ErrUnknownTool indicates the requested tool does not exist.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates argument validation failed.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Dispatcher mediates every tool call issued by the reasoning loop.
//
// The invocation protocol is:
//
//  1. Resolve the tool name; an unregistered name yields a failed Result
//     of kind unknown_tool.
//  2. Validate raw arguments against the tool's schema; a violation yields
//     a failed Result of kind invalid_arguments listing the offending
//     field, without ever calling the tool body.
//  3. Run the tool with a bounded context. A panic inside the body is
//     recovered and converted into a failed Result of kind panic; a
//     returned error becomes kind execution (or missing_context when the
//     tool required unset execution context). A single tool's failure
//     must never crash the reasoning loop.
//  4. Return the Result verbatim, including failures, to the caller.
//
// Thread Safety:
//
//	Dispatcher is safe for concurrent use across sessions.
type Dispatcher struct {
	registry *Registry
	options  DispatcherOptions
}

// NewDispatcher creates a dispatcher over the given registry.
//
// Inputs:
//
//	registry - The tool registry. Must not be nil.
//	opts - Dispatcher options (defaults used if nil).
func NewDispatcher(registry *Registry, opts *DispatcherOptions) *Dispatcher {
	options := DefaultDispatcherOptions()
	if opts != nil {
		options = *opts
	}
	return &Dispatcher{
		registry: registry,
		options:  options,
	}
}

// Invoke runs one tool call on behalf of the reasoning loop.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	inv - The invocation (tool name + raw arguments). Must not be nil.
//	env - Execution context and progress sink. Must not be nil.
//
// Outputs:
//
//	*Result - Always non-nil on nil error, including tool failures.
//	error - Non-nil only for caller programming errors.
//
// Thread Safety: This method is safe for concurrent use.
func (d *Dispatcher) Invoke(ctx context.Context, inv *Invocation, env *Env) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil invocation")
	}
	if env == nil || env.Context == nil {
		return nil, fmt.Errorf("nil invocation environment")
	}
	if env.Progress == nil {
		env.Progress = func(string) {}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	logger := slog.With("tool", inv.ToolName, "invocation_id", inv.ID)

	tool, ok := d.registry.Get(inv.ToolName)
	if !ok {
		logger.Warn("Unknown tool requested")
		result := Failed(FailureUnknownTool,
			fmt.Sprintf("%v: %q (available: %s)", ErrUnknownTool, inv.ToolName,
				strings.Join(d.registry.Names(), ", ")))
		inv.Result = result
		return result, nil
	}

	def := tool.Definition()
	if err := validateParams(&def, inv.Parameters); err != nil {
		logger.Warn("Argument validation failed", "error", err)
		result := Failed(FailureInvalidArguments,
			fmt.Sprintf("%v for %s: %v", ErrInvalidArguments, inv.ToolName, err))
		inv.Result = result
		return result, nil
	}

	timeout := d.options.DefaultTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv.StartedAt = time.Now()
	logger.Debug("Executing tool")

	result := d.run(ctx, tool, inv.Parameters, env)
	inv.CompletedAt = time.Now()
	result.Duration = inv.CompletedAt.Sub(inv.StartedAt)

	if len(result.OutputText) > d.options.MaxOutputChars {
		result.OutputText = result.OutputText[:d.options.MaxOutputChars] + "\n... [truncated]"
		result.Truncated = true
	}

	inv.Result = result
	logger.Debug("Tool finished",
		"success", result.Success,
		"kind", result.Kind,
		"duration", result.Duration,
	)
	return result, nil
}

// run executes the tool body with panic recovery.
func (d *Dispatcher) run(ctx context.Context, tool Tool, params map[string]any, env *Env) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", tool.Name(), "panic", r)
			result = Failed(FailurePanic, fmt.Sprintf("tool %s panicked: %v", tool.Name(), r))
		}
	}()

	res, err := tool.Execute(ctx, withDefaults(tool.Definition(), params), env)
	if err != nil {
		if errors.Is(err, ErrMissingContext) {
			return Failed(FailureMissingContext, err.Error())
		}
		return Failed(FailureExecution, err.Error())
	}
	if res == nil {
		return Failed(FailureExecution, fmt.Sprintf("tool %s returned no result", tool.Name()))
	}
	if !res.Success && res.Kind == "" {
		res.Kind = FailureExecution
	}
	return res
}

// withDefaults fills in declared default values for absent optional
// parameters. The input map is not mutated.
func withDefaults(def Definition, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for name, p := range def.Parameters {
		if _, ok := out[name]; !ok && p.Default != nil {
			out[name] = p.Default
		}
	}
	return out
}

// validateParams validates raw arguments against a tool definition.
func validateParams(def *Definition, params map[string]any) error {
	for name, paramDef := range def.Parameters {
		if paramDef.Required {
			if _, ok := params[name]; !ok {
				return &ValidationError{
					Parameter: name,
					Message:   "required parameter missing",
				}
			}
		}
	}

	for name, value := range params {
		paramDef, ok := def.Parameters[name]
		if !ok {
			// Unknown parameters are tolerated; models occasionally add
			// extras and rejecting them only burns a reasoning cycle.
			continue
		}
		if err := validateParam(name, value, paramDef); err != nil {
			return err
		}
	}

	return nil
}

// validateParam validates a single parameter value against its definition.
func validateParam(name string, value any, def ParamDef) error {
	if value == nil {
		if def.Required {
			return &ValidationError{Parameter: name, Message: "required parameter is nil"}
		}
		return nil
	}

	switch def.Type {
	case ParamTypeString:
		str, ok := value.(string)
		if !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "string",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.MinLength > 0 && len(str) < def.MinLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at least %d", def.MinLength),
			}
		}
		if def.MaxLength > 0 && len(str) > def.MaxLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("string length must be at most %d", def.MaxLength),
			}
		}

	case ParamTypeInt, ParamTypeFloat:
		// JSON unmarshals all numbers as float64; accept int forms too.
		var num float64
		switch v := value.(type) {
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		case float64:
			num = v
		default:
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  string(def.Type),
				Actual:    fmt.Sprintf("%T", value),
			}
		}
		if def.Minimum != nil && num < *def.Minimum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at least %v", *def.Minimum),
			}
		}
		if def.Maximum != nil && num > *def.Maximum {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("value must be at most %v", *def.Maximum),
			}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "boolean",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeArray:
		if _, ok := value.([]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "array",
				Actual:    fmt.Sprintf("%T", value),
			}
		}

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return &ValidationError{
				Parameter: name,
				Message:   "wrong type",
				Expected:  "object",
				Actual:    fmt.Sprintf("%T", value),
			}
		}
	}

	if len(def.Enum) > 0 {
		found := false
		for _, allowed := range def.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{
				Parameter: name,
				Message:   "value not in allowed enum",
				Expected:  fmt.Sprintf("%v", def.Enum),
				Actual:    fmt.Sprintf("%v", value),
			}
		}
	}

	return nil
}
