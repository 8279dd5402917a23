package script

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/loykin/orchestrator/internal/fsapi"
	"github.com/loykin/orchestrator/internal/orcherr"
)

func (e *Engine) decodeParams(f *Frame, step *Step, v interface{}) error {
	if len(step.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(step.Params, v); err != nil {
		return orcherr.Wrap(orcherr.KindScriptParse, "invalid params for "+step.Method, err)
	}
	return nil
}

// resolvePath runs a path-shaped parameter through Variable Resolution and
// then the frame's Path Mapper, the one pipeline every fs.* path argument
// goes through before fsapi ever sees it.
func (e *Engine) resolvePath(f *Frame, logical string) (string, error) {
	resolved, err := e.resolveString(f, logical)
	if err != nil {
		return "", err
	}
	return f.Paths.Resolve(resolved)
}

func (e *Engine) fs(f *Frame) *fsapi.API { return fsapi.New(f.InstallRoot) }

type fsWriteParams struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

func (e *Engine) stepFSWrite(f *Frame, step *Step) (string, error) {
	var p fsWriteParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	text, err := e.resolveString(f, p.Text)
	if err != nil {
		return "", err
	}
	if err := e.fs(f).WriteAtomic(path, []byte(text)); err != nil {
		return "", err
	}
	return "", nil
}

type fsPathParams struct {
	Path string `json:"path"`
}

func (e *Engine) stepFSRead(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	data, err := e.fs(f).Read(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type fsDownloadParams struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum,omitempty"`
	ExtractTo string `json:"extractTo,omitempty"`
}

func (e *Engine) stepFSDownload(ctx context.Context, f *Frame, step *Step) (string, error) {
	var p fsDownloadParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	return e.runDownload(ctx, f, p)
}

// runDownload is shared by fs.download and hf.download (a typed subset of
// the same params).
func (e *Engine) runDownload(ctx context.Context, f *Frame, p fsDownloadParams) (string, error) {
	resolvedPath, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	url, err := e.resolveString(f, p.URL)
	if err != nil {
		return "", err
	}
	resolvedExtractTo := ""
	if p.ExtractTo != "" {
		resolvedExtractTo, err = e.resolvePath(f, p.ExtractTo)
		if err != nil {
			return "", err
		}
	}
	progress := func(frac float64) {
		if e.hooks.Notify != nil {
			e.hooks.Notify(f.AppID, "step-progress", map[string]string{"fraction": strconv.FormatFloat(frac, 'f', 2, 64)})
		}
	}
	err = fsapi.Download(ctx, fsapi.DownloadOptions{
		URL: url, Dest: resolvedPath, Checksum: p.Checksum, ExtractTo: resolvedExtractTo, Progress: progress,
	})
	if err != nil {
		return "", err
	}
	if resolvedExtractTo != "" {
		return resolvedExtractTo, nil
	}
	return resolvedPath, nil
}

type fsCopyMoveParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e *Engine) stepFSCopy(f *Frame, step *Step) (string, error) {
	var p fsCopyMoveParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	from, err := e.resolvePath(f, p.From)
	if err != nil {
		return "", err
	}
	to, err := e.resolvePath(f, p.To)
	if err != nil {
		return "", err
	}
	return "", e.fs(f).Copy(from, to)
}

func (e *Engine) stepFSMove(f *Frame, step *Step) (string, error) {
	var p fsCopyMoveParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	from, err := e.resolvePath(f, p.From)
	if err != nil {
		return "", err
	}
	to, err := e.resolvePath(f, p.To)
	if err != nil {
		return "", err
	}
	return "", e.fs(f).Move(from, to)
}

func (e *Engine) stepFSRemove(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	return "", e.fs(f).Remove(path)
}

func (e *Engine) stepFSExists(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	ok, err := e.fs(f).Exists(path)
	if err != nil {
		return "", err
	}
	if ok {
		return "true", nil
	}
	return "false", nil
}

func (e *Engine) stepFSMkdir(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	return "", e.fs(f).Mkdir(path)
}

func (e *Engine) stepFSReaddir(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	names, err := e.fs(f).Readdir(path)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(names)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindInternal, "failed to encode directory listing", err)
	}
	return string(out), nil
}

func (e *Engine) stepFSRmdir(f *Frame, step *Step) (string, error) {
	var p fsPathParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	return "", e.fs(f).Rmdir(path)
}

type fsLinkParams struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

func (e *Engine) stepFSLink(f *Frame, step *Step) (string, error) {
	var p fsLinkParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	path, err := e.resolvePath(f, p.Path)
	if err != nil {
		return "", err
	}
	target, err := e.resolveString(f, p.Target)
	if err != nil {
		return "", err
	}
	resolvedTarget, err := f.Paths.ResolveShared(target)
	if err != nil {
		return "", err
	}
	if err := e.fs(f).Link(path, resolvedTarget); err != nil {
		return "", err
	}
	if e.hooks.RecordSharedLink != nil {
		e.hooks.RecordSharedLink(resolvedTarget)
	}
	return "", nil
}
