package script

import (
	"context"
	"strconv"

	git "github.com/go-git/go-git/v5"

	"github.com/loykin/orchestrator/internal/orcherr"
)

type scriptStartParams struct {
	ID    string            `json:"id,omitempty"`
	URI   string            `json:"uri,omitempty"`
	Args  map[string]string `json:"args,omitempty"`
	Input string            `json:"input,omitempty"`
}

// stepScriptStart pushes a child ExecutionFrame and interprets it to
// completion (or failure) before returning, per the spec's frame-stack
// model: script.start is itself one step of the parent, not a fire-and-forget.
func (e *Engine) stepScriptStart(ctx context.Context, f *Frame, step *Step) (string, error) {
	var p scriptStartParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}

	var doc *Document
	installRoot := f.InstallRoot
	switch {
	case p.URI != "":
		resolvedURI, err := e.resolveString(f, p.URI)
		if err != nil {
			return "", err
		}
		doc, err = e.lookupSubScript(resolvedURI)
		if err != nil {
			return "", err
		}
		installRoot = "" // fresh frame with an empty install root, per spec
	case p.ID != "":
		var err error
		doc, err = e.lookupSubScript(p.ID)
		if err != nil {
			return "", err
		}
	default:
		return "", orcherr.New(orcherr.KindScriptParse, "script.start: one of id or uri is required")
	}

	args := make(map[string]string, len(p.Args))
	for k, v := range p.Args {
		rv, err := e.resolveString(f, v)
		if err != nil {
			return "", err
		}
		args[k] = rv
	}
	input, err := e.resolveString(f, p.Input)
	if err != nil {
		return "", err
	}

	child := &Frame{
		Doc:         doc,
		AppID:       f.AppID,
		InstallRoot: installRoot,
		Paths:       f.Paths,
		Venv:        f.Venv,
		Args:        args,
		Local:       copyStringMap(f.Local), // copy-on-push, per spec
		Env:         f.Env,
		Input:       input,
		Parent:      f,
		GPUs:        f.GPUs,
		Platform:    f.Platform,
		Arch:        f.Arch,
	}
	return e.Run(ctx, child)
}

func (e *Engine) lookupSubScript(ref string) (*Document, error) {
	if e.hooks.SubScript == nil {
		return nil, orcherr.New(orcherr.KindUnknownMethod, "script.start: no sub-script resolver configured")
	}
	doc, err := e.hooks.SubScript(ref)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindIllegalState, "failed to resolve sub-script "+ref, err)
	}
	return doc, nil
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type scriptStopParams struct {
	App string `json:"app,omitempty"`
}

func (e *Engine) stepScriptStop(ctx context.Context, f *Frame, step *Step) (string, error) {
	if e.hooks.StopApp == nil {
		return "", orcherr.New(orcherr.KindUnknownMethod, "script.stop: no stop hook configured")
	}
	var p scriptStopParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	appID := f.AppID
	if p.App != "" {
		resolved, err := e.resolveString(f, p.App)
		if err != nil {
			return "", err
		}
		appID = resolved
	}
	if err := e.hooks.StopApp(ctx, appID); err != nil {
		return "", orcherr.Wrap(orcherr.KindInternal, "script.stop failed", err)
	}
	return "", nil
}

type scriptDownloadParams struct {
	URI  string `json:"uri"`
	Path string `json:"path"`
}

// stepScriptDownload fetches a script descriptor published as a git
// repository (the common case for community app catalogs) into path and
// returns the local checkout directory, which a following script.start
// with a uri pointing inside it, or a direct fs.read, picks up from.
func (e *Engine) stepScriptDownload(ctx context.Context, f *Frame, step *Step) (string, error) {
	var p scriptDownloadParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	uri, err := e.resolveString(f, p.URI)
	if err != nil {
		return "", err
	}
	dest, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	_, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   uri,
		Depth: 1,
	})
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindCloneFailed, "script.download: clone failed", err).WithDetail(uri)
	}
	return dest, nil
}

type scriptReturnParams struct {
	Value string `json:"value,omitempty"`
}

// stepScriptReturn resolves value and signals the Run loop (via
// Frame.returning) to stop this frame immediately, handing the value back
// to the script.start call site that pushed it.
func (e *Engine) stepScriptReturn(f *Frame, step *Step) (string, error) {
	var p scriptReturnParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	value, err := e.resolveString(f, p.Value)
	if err != nil {
		return "", err
	}
	f.returning = true
	return value, nil
}

type jumpParams struct {
	ID     string            `json:"id,omitempty"`
	Index  *int              `json:"index,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// stepJump resolves jumpParams.Params into the current frame's local
// bindings (example 6 in spec.md shows a jumped-to step reading a value
// the jump supplied via {{local.X}}) and signals the Run loop to
// transfer control to the target step instead of advancing normally.
// The target is given by id: (a string label) or index: (a 0-based
// integer); an out-of-range index or an unknown id both fail with
// script-parse.
func (e *Engine) stepJump(f *Frame, step *Step) (string, error) {
	var p jumpParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}

	var idx int
	switch {
	case p.Index != nil:
		idx = *p.Index
		if idx < 0 || idx >= len(f.Doc.Run) {
			return "", orcherr.New(orcherr.KindScriptParse, "jump: target index out of range").WithDetail(strconv.Itoa(idx))
		}
	case p.ID != "":
		idx = f.Doc.indexByID(p.ID)
		if idx < 0 {
			return "", orcherr.New(orcherr.KindScriptParse, "jump: target id not found").WithDetail(p.ID)
		}
	default:
		return "", orcherr.New(orcherr.KindScriptParse, "jump: one of id or index is required")
	}

	for k, v := range p.Params {
		resolved, err := e.resolveString(f, v)
		if err != nil {
			return "", err
		}
		f.setLocal(k, resolved)
	}
	f.jumpTo = &idx
	return "", nil
}

type webOpenParams struct {
	URL string `json:"url"`
}

// stepWebOpen never opens anything itself; it only records the intent as
// an event for the RPC surface to act on, per spec.md's "surfaced as an
// event, not directly executed."
func (e *Engine) stepWebOpen(f *Frame, step *Step) (string, error) {
	var p webOpenParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	url, err := e.resolveString(f, p.URL)
	if err != nil {
		return "", err
	}
	if e.hooks.Notify != nil {
		e.hooks.Notify(f.AppID, "web-open", map[string]string{"url": url})
	}
	return url, nil
}

type hfDownloadParams struct {
	Repo     string `json:"repo"`
	File     string `json:"file"`
	Revision string `json:"revision,omitempty"`
	Path     string `json:"path"`
}

// stepHFDownload is the declared typed subset of fs.download for pulling
// a single file out of a hosted-hub repository: it builds the resolve URL
// and falls straight into runDownload, the same code path fs.download
// uses, rather than duplicating the transfer logic.
func (e *Engine) stepHFDownload(ctx context.Context, f *Frame, step *Step) (string, error) {
	var p hfDownloadParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	repo, err := e.resolveString(f, p.Repo)
	if err != nil {
		return "", err
	}
	file, err := e.resolveString(f, p.File)
	if err != nil {
		return "", err
	}
	revision := p.Revision
	if revision == "" {
		revision = "main"
	}
	url := "https://huggingface.co/" + repo + "/resolve/" + revision + "/" + file
	return e.runDownload(ctx, f, fsDownloadParams{URL: url, Path: p.Path})
}
