package mcp

import (
	"context"
	"encoding/json"

	"github.com/benredmond/apex-sub002/internal/apierr"
	"github.com/benredmond/apex-sub002/internal/reflectpipeline"
)

type reflectTool struct{ d *Deps }

func (t *reflectTool) Name() string { return "apex_reflect" }
func (t *reflectTool) Description() string {
	return "Post a reflection: claimed pattern usage, trust updates, and new/anti patterns for a completed task."
}
func (t *reflectTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task": {"type": "object", "properties": {"id": {"type": "string"}, "title": {"type": "string"}}, "required": ["id"]},
    "outcome": {"type": "string", "enum": ["success", "partial", "failure"]},
    "claims": {
      "type": "object",
      "properties": {
        "patterns_used": {"type": "array"},
        "trust_updates": {"type": "array"},
        "new_patterns": {"type": "array"},
        "anti_patterns": {"type": "array"},
        "learnings": {"type": "array"}
      }
    },
    "artifacts": {"type": "object", "properties": {"commits": {"type": "array", "items": {"type": "string"}}}},
    "dry_run": {"type": "boolean"},
    "auto_mine": {"type": "boolean"}
  },
  "required": ["task", "outcome", "claims"]
}`)
}

// Execute is not cached — reflections are writes, bypassing the response
// cache entirely per §5.
func (t *reflectTool) Execute(ctx context.Context, params json.RawMessage) (*ToolsCallResult, error) {
	start := t.d.now()

	var req reflectpipeline.Request
	if err := json.Unmarshal(params, &req); err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "invalid arguments: %v", err))
	}
	if req.Task.ID == "" {
		return t.d.fail(t.Name(), start, apierr.New(apierr.InvalidParams, "task.id is required").WithFields([]apierr.FieldError{{Path: "task.id", Code: "required", Message: "task.id is required"}}))
	}

	resp, err := t.d.Pipeline.Process(req)
	if err != nil {
		return t.d.fail(t.Name(), start, apierr.New(apierr.ToolExecution, "reflection processing failed: %v", err))
	}

	return t.d.ok(t.Name(), start, nil, resp)
}
