package lifecycle

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/pathmap"
	"github.com/loykin/orchestrator/internal/script"
)

// loadScript resolves one of candidates (in order) under paths's install
// root, the hint-then-convention lookup spec.md §4.2 describes for both
// the installer and the start script. The first candidate that exists on
// disk is parsed; "js"-suffixed candidates are parsed as the same JSON
// document shape, per spec.md's "a trivially JSON-equivalent object
// exported by a small scripting dialect" — this orchestrator never
// evaluates script code, only the JSON object a .js variant exports.
func loadScript(paths *pathmap.Mapper, hint string, candidates ...string) (*script.Document, string, error) {
	tries := candidates
	if hint != "" {
		tries = append([]string{hint}, candidates...)
	}
	for _, name := range tries {
		if name == "" {
			continue
		}
		abs, err := paths.Resolve(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", orcherr.Wrap(orcherr.KindScriptParse, "failed to read script "+name, err)
		}
		doc, err := script.Parse(data)
		if err != nil {
			return nil, "", err
		}
		kind := "json"
		if strings.HasSuffix(name, ".js") {
			kind = "js"
		}
		return doc, kind, nil
	}
	return nil, "", orcherr.New(orcherr.KindScriptParse, "no script found").WithDetail(strings.Join(tries, ", "))
}

func loadInstallScript(paths *pathmap.Mapper, hint string) (*script.Document, string, error) {
	return loadScript(paths, hint, "install.json", "install.js")
}

func loadStartScript(paths *pathmap.Mapper, hint string) (*script.Document, string, error) {
	return loadScript(paths, hint, "start.json", "start.js", "pinokio.json", "pinokio.js")
}

// scriptDir is the directory a bare id (no slashes, no scheme) resolves
// relative to for script.start's sub-script lookup: the frame's own
// install root, by convention the same directory the top-level script
// lives in.
func scriptDir(installRoot, id string) string {
	if filepath.Ext(id) == "" {
		return id + ".json"
	}
	return id
}
