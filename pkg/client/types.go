package client

import "github.com/loykin/orchestrator/internal/registry"

// StartRequest is the body of a start command.
type StartRequest struct {
	AppID string            `json:"appId"`
	Args  map[string]string `json:"args,omitempty"`
}

// StopRequest is the body of a stop command.
type StopRequest struct {
	AppID string `json:"appId"`
}

// UninstallRequest is the body of an uninstall command. Purge, per
// spec.md §4.2, also removes this app's own shared model directories
// instead of preserving them.
type UninstallRequest struct {
	AppID string `json:"appId"`
	Purge bool   `json:"purge,omitempty"`
}

// InputReplyRequest answers an input-request event raised by a running
// script's `input` step.
type InputReplyRequest struct {
	RequestID string `json:"requestId"`
	Value     string `json:"value"`
}

// appResp is the envelope install/start/stop/uninstall/status return,
// matching internal/rpc's handlers.
type appResp struct {
	CommandID string              `json:"commandId"`
	App       *registry.AppRecord `json:"app,omitempty"`
	OK        bool                `json:"ok,omitempty"`
}

// listResp is the envelope handleList returns.
type listResp struct {
	CommandID string                `json:"commandId"`
	Apps      []*registry.AppRecord `json:"apps"`
}

// ErrorResponse is the body an orchestratord command endpoint returns on
// failure, matching internal/rpc's errorResp.
type ErrorResponse struct {
	CommandID string `json:"commandId,omitempty"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}
