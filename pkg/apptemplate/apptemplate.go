// Package apptemplate generates a starter ScriptAST for a small closed
// set of app categories, so a caller assembling a new AppDescriptor for
// an uncatalogued app does not start from a blank script. Grounded on
// the teacher-adjacent renderer in the example pack's code-generation
// tooling: an embedded text/template per artifact, extended with
// sprig's function set, executed against a small typed data struct.
package apptemplate

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/loykin/orchestrator/internal/script"
)

// Category is one of the closed set of starter shapes this package
// knows how to generate. Adding a category here is the only supported
// way to extend the set — this package never infers a category from
// caller-supplied data.
type Category string

const (
	CategoryWebapp   Category = "webapp"
	CategoryWorker   Category = "worker"
	CategoryDatabase Category = "database"
	CategorySimple   Category = "simple"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Params is the caller-supplied shape for the category's starter script.
// Fields that don't apply to a category are ignored.
type Params struct {
	Command      string // entry-point command, e.g. "python app.py"
	Port         int    // listen port, webapp/database only
	Requirements string // path to a requirements file, relative to the app root; empty skips the install step
}

// Generate renders category's starter script and parses it back through
// script.Parse, so a caller gets a validated *script.Document rather than
// raw bytes it still has to check itself.
func Generate(category Category, p Params) (*script.Document, error) {
	raw, err := render(category, p)
	if err != nil {
		return nil, err
	}
	return script.Parse(raw)
}

func render(category Category, p Params) ([]byte, error) {
	name := string(category) + ".tmpl"
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("apptemplate: unknown category %q: %w", category, err)
	}

	data := templateData{
		Command:      strings.TrimSpace(p.Command),
		Port:         p.Port,
		Requirements: strings.TrimSpace(p.Requirements),
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("apptemplate: rendering %s: %w", category, err)
	}

	// Re-marshal through json.RawMessage to guarantee the template's
	// hand-written JSON is exactly what script.Parse's schema check sees,
	// and to give a clean parse error if a template's braces ever drift.
	var doc json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("apptemplate: %s produced invalid JSON: %w", category, err)
	}
	return doc, nil
}

type templateData struct {
	Command      string
	Port         int
	Requirements string
}
