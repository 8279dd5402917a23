// Package script interprets a ScriptAST against an ExecutionFrame,
// dispatching each step to the Shell Runner, File System API, JSON
// operations, net operations, or one of the control-flow instructions.
package script

import (
	"encoding/json"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// Document is the top-level parsed form of an install/run script:
// {version, run: Step[], daemon?, env?}.
type Document struct {
	Version string            `json:"version,omitempty"`
	Run     []Step            `json:"run"`
	Daemon  bool              `json:"daemon,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// OnHandler is one entry of a step's `on:` error-recovery list.
type OnHandler struct {
	Event  string `json:"event"` // a regex matched against the failure's message/detail, or the literal "error"
	Return string `json:"return"`
}

// Step is one instruction in a script. Params is kept as raw JSON and
// decoded by the handler registered for Method, after Variable Resolution
// has been applied to every string leaf.
type Step struct {
	Index  int // 0-based position in Run; set by Parse, not by the author
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	When   string `json:"when,omitempty"`
	On     []OnHandler `json:"on,omitempty"`
}

// Parse validates raw against the fixed script schema (see validate.go) and
// builds a Document with each Step's Index populated from its array
// position. Schema violations and structurally invalid JSON both surface
// as orcherr.KindScriptParse.
func Parse(raw []byte) (*Document, error) {
	if err := ValidateSchema(raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, orcherr.Wrap(orcherr.KindScriptParse, "failed to decode script document", err)
	}
	for i := range doc.Run {
		doc.Run[i].Index = i
	}
	return &doc, nil
}

// indexByID finds the index of the step whose ID matches id, or -1.
func (d *Document) indexByID(id string) int {
	for i, s := range d.Run {
		if s.ID == id {
			return i
		}
	}
	return -1
}
