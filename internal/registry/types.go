// Package registry is the App Registry: the single source of truth for
// AppRecords, persisted between sessions behind a pluggable Store backend
// (sqlite/postgres/dynamo), with an atomic-write JSON file as the default.
package registry

import "time"

// State is one of the Lifecycle Manager's closed set of app states.
type State string

const (
	StateAbsent     State = "absent"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

// AppDescriptor is caller-provided input to install: where the app comes
// from and hints the installer uses, never curated by the orchestrator
// itself.
type AppDescriptor struct {
	AppID            string `json:"appId"`
	SourceLocator    string `json:"sourceLocator"` // a repository URL to clone, or a local path
	Category         string `json:"category,omitempty"`
	InstallerHint    string `json:"installerHint,omitempty"`    // expected installer script filename
	ReadinessHint    string `json:"readinessHint,omitempty"`    // expected readiness regex
	DefaultPortHint  int    `json:"defaultPortHint,omitempty"`  // expected default port
	GPURequirement   string `json:"gpuRequirement,omitempty"`   // tier, e.g. "none", "any", "high-vram"
}

// LastError is the kind/message/detail triple every failed transition
// records on the AppRecord it failed.
type LastError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ProcessHandle is the supervised-process half of an AppRecord: present
// only while state is starting/running/stopping.
type ProcessHandle struct {
	PID        int    `json:"pid"`
	PGID       int    `json:"pgid"`
	OutputLog  string `json:"outputLog"`
}

// TunnelRecord mirrors spec.md §3's TunnelRecord: provider tag, local
// port, public URL, health, and an opaque reference to credential
// material (never the material itself).
type TunnelRecord struct {
	Provider     string    `json:"provider"`
	LocalPort    int       `json:"localPort"`
	PublicURL    string    `json:"publicUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	Health       string    `json:"health"` // "healthy", "degraded", "dead"
	CredentialRef string   `json:"credentialRef,omitempty"`
}

// AppRecord is the persisted state for one app id — identity, install,
// runtime, process, exposure, and memory sections exactly as spec.md §3
// groups them.
type AppRecord struct {
	AppID      string        `json:"appId"`
	Descriptor AppDescriptor `json:"descriptor"`

	InstallRoot   string `json:"installRoot,omitempty"`
	VenvPath      string `json:"venvPath,omitempty"`
	VenvKind      string `json:"venvKind,omitempty"`
	InstallerKind string `json:"installerKind,omitempty"` // "js" or "json"

	State            State     `json:"state"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
	LastError        *LastError `json:"lastError,omitempty"`

	Process *ProcessHandle `json:"process,omitempty"`

	LocalPort *int          `json:"localPort,omitempty"`
	Tunnel    *TunnelRecord `json:"tunnel,omitempty"`

	LocalVars map[string]string `json:"localVars,omitempty"`

	// SharedLinks holds every resolved shared-root path this app's fs.link
	// steps have created, so Uninstall can remove this app's own copies of
	// them when purge is requested without walking the whole shared root.
	SharedLinks []string `json:"sharedLinks,omitempty"`
}

// Clone returns a deep-enough copy for safe hand-off to a reader outside
// the Registry's writer lock (pointer fields are copied, not shared).
func (r *AppRecord) Clone() *AppRecord {
	c := *r
	if r.LastError != nil {
		e := *r.LastError
		c.LastError = &e
	}
	if r.Process != nil {
		p := *r.Process
		c.Process = &p
	}
	if r.LocalPort != nil {
		p := *r.LocalPort
		c.LocalPort = &p
	}
	if r.Tunnel != nil {
		t := *r.Tunnel
		c.Tunnel = &t
	}
	if r.LocalVars != nil {
		c.LocalVars = make(map[string]string, len(r.LocalVars))
		for k, v := range r.LocalVars {
			c.LocalVars[k] = v
		}
	}
	if r.SharedLinks != nil {
		c.SharedLinks = append([]string(nil), r.SharedLinks...)
	}
	return &c
}
