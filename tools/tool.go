// Package tools defines the typed tool contract the Agent Loop dispatches
// against (§4.5): name, description, a JSON-Schema-validated parameter
// shape, and an execute function that may stream progress via onUpdate.
//
// Grounded on goa-ai's tool-definition plumbing for schema
// generation/validation (features/tool and its use of
// invopop/jsonschema plus santhosh-tekuri/jsonschema/v6 to validate
// caller-supplied arguments before a tool body ever runs) — sidekick
// itself hands tool arguments straight to its handler functions without
// a schema validation pass at this layer.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// serializedTools names the tools whose calls must be serialized per
// target file (§5: "edit"/"write" execution is ordered per-file even when
// the agent loop dispatches tool calls in parallel, so two concurrent
// edits to the same path can't interleave).
var serializedTools = map[string]bool{
	"edit":  true,
	"write": true,
}

// Result is what a tool execution reports back to the Agent Loop, mirroring
// a tool_result content block's shape without depending on the types
// package: IsError flips the resulting ContentBlock's IsError flag.
type Result struct {
	Text    string
	IsError bool
}

// ErrorResult builds a failed Result from an error.
func ErrorResult(err error) Result {
	return Result{Text: err.Error(), IsError: true}
}

// Update is a progress notification a long-running tool emits through
// onUpdate; the Agent Loop forwards it as a tool_execution_update event.
type Update struct {
	Text string
}

// OnUpdate receives zero or more progress Updates before execute returns
// its final Result. Never called after execute returns.
type OnUpdate func(Update)

// Definition is a single tool the runtime can dispatch to: Execute
// receives the already-validated arguments as raw JSON and the call's
// own cancellation context.
type Definition struct {
	Name        string
	Label       string
	Description string
	Schema      json.RawMessage
	Execute     func(ctx context.Context, callID string, args json.RawMessage, onUpdate OnUpdate) Result

	compiled *jsonschema.Schema
}

// SchemaFor generates a JSON Schema document from a Go struct, for tools
// whose arguments are conveniently expressed as a typed input struct.
func SchemaFor(v any) json.RawMessage {
	schema := (&jsonschema.Reflector{DoNotReference: true}).Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: failed to marshal generated schema: %v", err))
	}
	return raw
}

// Registry holds the tool set available to an agent turn and validates
// arguments against each tool's schema before dispatch.
type Registry struct {
	defs map[string]*Definition

	// fileLocks gates concurrent edit/write calls targeting the same
	// path, keyed by the call's raw "path" argument. Populated lazily;
	// never removed, since a Registry's lifetime is one process.
	fileLocks sync.Map // string -> *sync.Mutex
}

// NewRegistry compiles every definition's schema up front so a malformed
// schema fails at registration time, not mid-turn.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for i := range defs {
		d := defs[i]
		if len(d.Schema) > 0 {
			compiled, err := compileSchema(d.Name, d.Schema)
			if err != nil {
				return nil, fmt.Errorf("tools: compiling schema for %q: %w", d.Name, err)
			}
			d.compiled = compiled
		}
		r.defs[d.Name] = &d
	}
	return r, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// Get returns the named tool definition, or false if it isn't registered.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Defs returns every registered definition, in no particular order; used
// to build the Tools list passed to a provider's Params.
func (r *Registry) Defs() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// Validate checks args against the tool's compiled schema. A tool with no
// schema accepts any arguments.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	d, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if d.compiled == nil {
		return nil
	}
	var inst any
	if err := json.Unmarshal(args, &inst); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := d.compiled.Validate(inst); err != nil {
		return err
	}
	return nil
}

// Execute validates args against the tool's schema and, on success, runs
// its body. A validation failure yields an error Result without invoking
// Execute, per §4.5. edit/write calls targeting the same path are
// serialized against each other (§5), even when the caller dispatches
// tool calls in parallel; calls to different paths, or to any other
// tool, never block on this lock.
func (r *Registry) Execute(ctx context.Context, name, callID string, args json.RawMessage, onUpdate OnUpdate) Result {
	d, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Errorf("unknown tool %q", name))
	}
	if err := r.Validate(name, args); err != nil {
		return ErrorResult(fmt.Errorf("invalid arguments for %q: %w", name, err))
	}

	if serializedTools[name] {
		if path := pathArgument(args); path != "" {
			mu := r.lockFor(path)
			mu.Lock()
			defer mu.Unlock()
		}
	}

	return d.Execute(ctx, callID, args, onUpdate)
}

// lockFor returns the mutex guarding path, creating it on first use.
func (r *Registry) lockFor(path string) *sync.Mutex {
	actual, _ := r.fileLocks.LoadOrStore(path, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// pathArgument extracts the "path" field a tool call's arguments carry,
// shared by both the edit and write tool definitions. Returns "" if args
// has no such field, in which case the call runs unserialized.
func pathArgument(args json.RawMessage) string {
	var decoded struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return ""
	}
	return decoded.Path
}
