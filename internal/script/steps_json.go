package script

import (
	"encoding/json"
	"strings"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// jsonParams covers every json.* method's params; which fields are used
// depends on step.Method. `doc` is a JSON document as text, the currency
// every non-file method passes along so a script can chain
// json.get/json.set/json.merge/json.rm through {{input}}.
type jsonParams struct {
	Path  string          `json:"path,omitempty"`
	Doc   string          `json:"doc,omitempty"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Patch json.RawMessage `json:"patch,omitempty"`
}

// stepJSON dispatches the json.read/write/get/set/merge/rm family, which
// share a params shape closely enough to not warrant six separate decode
// steps.
func (e *Engine) stepJSON(f *Frame, step *Step) (string, error) {
	var p jsonParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}

	switch step.Method {
	case "json.read":
		path, err := e.resolvePath(f, p.Path)
		if err != nil {
			return "", err
		}
		data, err := e.fs(f).Read(path)
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "json.write":
		path, err := e.resolvePath(f, p.Path)
		if err != nil {
			return "", err
		}
		doc, err := e.resolveString(f, p.Doc)
		if err != nil {
			return "", err
		}
		if err := e.fs(f).WriteAtomic(path, []byte(doc)); err != nil {
			return "", err
		}
		return "", nil

	case "json.get":
		root, err := e.decodeDoc(f, p.Doc)
		if err != nil {
			return "", err
		}
		v, ok := getPath(root, splitKey(p.Key))
		if !ok {
			return "", orcherr.New(orcherr.KindIllegalState, "json.get: key not found").WithDetail(p.Key)
		}
		return encodeValue(v)

	case "json.set":
		root, err := e.decodeDoc(f, p.Doc)
		if err != nil {
			return "", err
		}
		var v interface{}
		if len(p.Value) > 0 {
			if err := json.Unmarshal(p.Value, &v); err != nil {
				return "", orcherr.Wrap(orcherr.KindScriptParse, "json.set: invalid value", err)
			}
		}
		setPath(&root, splitKey(p.Key), v)
		return encodeDoc(root)

	case "json.merge":
		root, err := e.decodeDoc(f, p.Doc)
		if err != nil {
			return "", err
		}
		var patch interface{}
		if len(p.Patch) > 0 {
			if err := json.Unmarshal(p.Patch, &patch); err != nil {
				return "", orcherr.Wrap(orcherr.KindScriptParse, "json.merge: invalid patch", err)
			}
		}
		merged := mergeValues(root, patch)
		return encodeDoc(merged)

	case "json.rm":
		root, err := e.decodeDoc(f, p.Doc)
		if err != nil {
			return "", err
		}
		rmPath(&root, splitKey(p.Key))
		return encodeDoc(root)

	default:
		return "", orcherr.New(orcherr.KindUnknownMethod, "unknown json method "+step.Method)
	}
}

func (e *Engine) decodeDoc(f *Frame, raw string) (interface{}, error) {
	resolved, err := e.resolveString(f, raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resolved) == "" {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(resolved), &v); err != nil {
		return nil, orcherr.Wrap(orcherr.KindScriptParse, "invalid json document", err)
	}
	return v, nil
}

func encodeDoc(v interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindInternal, "failed to encode json document", err)
	}
	return string(out), nil
}

func encodeValue(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return encodeDoc(v)
}

func splitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

func getPath(v interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return v, true
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	child, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	return getPath(child, path[1:])
}

// setPath writes value at path into root, creating missing intermediate
// objects as it descends — the one json.set guarantee spec.md calls out
// by name.
func setPath(root *interface{}, path []string, value interface{}) {
	if len(path) == 0 {
		*root = value
		return
	}
	m, ok := (*root).(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		*root = m
	}
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]]
	if !ok {
		child = map[string]interface{}{}
	}
	setPath(&child, path[1:], value)
	m[path[0]] = child
}

func rmPath(root *interface{}, path []string) {
	if len(path) == 0 {
		return
	}
	m, ok := (*root).(map[string]interface{})
	if !ok {
		return
	}
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	child, ok := m[path[0]]
	if !ok {
		return
	}
	rmPath(&child, path[1:])
	m[path[0]] = child
}

// mergeValues deep-merges patch into base: objects merge key-by-key,
// anything else (scalars, arrays, a type mismatch) is a straight
// replacement by patch.
func mergeValues(base, patch interface{}) interface{} {
	patchMap, ok := patch.(map[string]interface{})
	if !ok {
		if patch == nil {
			return base
		}
		return patch
	}
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		baseMap = map[string]interface{}{}
	}
	merged := map[string]interface{}{}
	for k, v := range baseMap {
		merged[k] = v
	}
	for k, v := range patchMap {
		merged[k] = mergeValues(merged[k], v)
	}
	return merged
}
