package script

import (
	"context"
	"encoding/json"

	"github.com/loykin/orchestrator/internal/orcherr"
)

type netRequestParams struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (e *Engine) stepNetRequest(ctx context.Context, f *Frame, step *Step) (string, error) {
	if e.hooks.HTTPDo == nil {
		return "", orcherr.New(orcherr.KindUnknownMethod, "net.request: no HTTP client configured")
	}
	var p netRequestParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	method := p.Method
	if method == "" {
		method = "GET"
	}
	url, err := e.resolveString(f, p.URL)
	if err != nil {
		return "", err
	}
	body, err := e.resolveString(f, p.Body)
	if err != nil {
		return "", err
	}
	headers := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		rv, err := e.resolveString(f, v)
		if err != nil {
			return "", err
		}
		headers[k] = rv
	}
	status, respBody, err := e.hooks.HTTPDo(ctx, method, url, headers, body)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindInternal, "net.request failed", err)
	}
	if status >= 400 {
		return "", orcherr.New(orcherr.KindInternal, "net.request received an error status").WithDetail(respBody)
	}
	return respBody, nil
}

func (e *Engine) stepInput(ctx context.Context, f *Frame, step *Step) (string, error) {
	if e.hooks.RequestInput == nil {
		return "", orcherr.New(orcherr.KindUnknownMethod, "input: no input surface configured")
	}
	var spec InputSpec
	if err := e.decodeParams(f, step, &spec); err != nil {
		return "", err
	}
	prompt, err := e.resolveString(f, spec.Prompt)
	if err != nil {
		return "", err
	}
	spec.Prompt = prompt
	value, err := e.hooks.RequestInput(ctx, f.AppID, spec)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindInputCancelled, "input request failed", err)
	}
	return value, nil
}

// stepLocalSet writes every key in step.Params (a flat string-to-string
// map) into the current frame's bindings and the engine's persistent
// bottom layer — never into parent frames (see the Open Question this
// resolves in SPEC_FULL.md).
func (e *Engine) stepLocalSet(f *Frame, step *Step) (string, error) {
	raw := map[string]string{}
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &raw); err != nil {
			return "", orcherr.Wrap(orcherr.KindScriptParse, "local.set: params must be a flat string map", err)
		}
	}
	persist := e.PersistentLocals(f.AppID)
	for k, v := range raw {
		resolved, err := e.resolveString(f, v)
		if err != nil {
			return "", err
		}
		f.setLocal(k, resolved)
		persist[k] = resolved
	}
	return "", nil
}

type logParams struct {
	Level    string `json:"level,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

func (e *Engine) stepLog(f *Frame, step *Step) (string, error) {
	var p logParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	message, err := e.resolveString(f, p.Message)
	if err != nil {
		return "", err
	}
	level := p.Level
	if level == "" {
		level = "info"
	}
	if e.hooks.Log != nil {
		e.hooks.Log(level, p.Category, message)
	}
	return message, nil
}

type notifyParams struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data,omitempty"`
}

func (e *Engine) stepNotify(f *Frame, step *Step) (string, error) {
	var p notifyParams
	if err := e.decodeParams(f, step, &p); err != nil {
		return "", err
	}
	data := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		rv, err := e.resolveString(f, v)
		if err != nil {
			return "", err
		}
		data[k] = rv
	}
	if e.hooks.Notify != nil {
		e.hooks.Notify(f.AppID, p.Event, data)
	}
	return "", nil
}
