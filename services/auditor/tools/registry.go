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
	"sort"
	"sync"
)

// Registry manages tool registration and lookup.
//
// Every agent executor shares one registry. Lookup is by unique name;
// Definitions() presents the catalog grouped by phase in the fixed order
// setup, exploration, search, reporting, which is the selection hint the
// language model sees.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu sync.RWMutex

	// byName maps tool names to tool instances.
	byName map[string]Tool

	// byPhase maps phases to lists of tools in registration order.
	byPhase map[Phase][]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Tool),
		byPhase: make(map[Phase][]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its Name() and Definition().Phase. A tool with
//	the same name replaces the existing registration.
//
// Inputs:
//
//	tool - The tool to register. Nil tools are ignored.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) {
	if tool == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	phase := tool.Definition().Phase

	if existing, ok := r.byName[name]; ok {
		oldPhase := existing.Definition().Phase
		if oldPhase != phase {
			r.removeFromPhase(oldPhase, name)
		}
	}

	r.byName[name] = tool

	replaced := false
	for i, t := range r.byPhase[phase] {
		if t.Name() == name {
			r.byPhase[phase][i] = tool
			replaced = true
			break
		}
	}
	if !replaced {
		r.byPhase[phase] = append(r.byPhase[phase], tool)
	}
}

// removeFromPhase removes a tool from a phase list.
// Caller must hold the write lock.
func (r *Registry) removeFromPhase(phase Phase, name string) {
	list := r.byPhase[phase]
	for i, t := range list {
		if t.Name() == name {
			r.byPhase[phase] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get returns a tool by name.
//
// Inputs:
//
//	name - The tool name.
//
// Outputs:
//
//	Tool - The registered tool, or nil if not found.
//	bool - True if the tool was found.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// Unregister removes a tool from the registry.
//
// Outputs:
//
//	bool - True if the tool was found and removed.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.byName[name]
	if !ok {
		return false
	}

	delete(r.byName, name)
	r.removeFromPhase(tool.Definition().Phase, name)
	return true
}

// Names returns all registered tool names, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Definitions returns the full catalog in phase order.
//
// Description:
//
//	Tools are grouped by phase in the fixed order setup, exploration,
//	search, reporting; within a phase, registration order is preserved.
//	This ordering is purely a hint to the model's selection heuristic,
//	never an enforced gate.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.byName))
	for _, phase := range phaseOrder {
		for _, tool := range r.byPhase[phase] {
			defs = append(defs, tool.Definition())
		}
	}
	return defs
}
