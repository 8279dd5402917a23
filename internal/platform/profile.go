// Package platform detects the host class the orchestrator is running on and
// exposes a read-only PlatformProfile consumed by every other component.
// The detection ladder is grounded on the teacher's config-driven approach to
// environment/feature detection (internal/config) generalized to a fixed,
// closed set of cloud notebook hosts.
package platform

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/docker/docker/client"
)

// Class is one of the closed set of host classes the orchestrator recognizes.
type Class string

const (
	ClassColab       Class = "colab"
	ClassVast        Class = "vast"
	ClassLightningAI Class = "lightning"
	ClassPaperspace  Class = "paperspace"
	ClassRunPod      Class = "runpod"
	ClassGenericLinux Class = "generic-linux"
)

// GPU describes one visible accelerator.
type GPU struct {
	Name        string
	MemoryMiB   int
	CUDAVersion string
}

// Limits caps the resources the orchestrator is allowed to assume are available.
type Limits struct {
	CPUCount  int
	MemoryMiB int64
	DiskMiB   int64
}

// Profile is immutable after Probe() returns; nothing downstream may mutate it.
type Profile struct {
	class            Class
	root             string
	tempDir          string
	persistenceDir   string
	gpus             []GPU
	limits           Limits
	capabilities     map[string]bool // e.g. "conda", "node", "git"
	containerized    bool
	allowsRawSignals bool
}

func (p *Profile) Class() Class             { return p.class }
func (p *Profile) Root() string              { return p.root }
func (p *Profile) TempDir() string           { return p.tempDir }
func (p *Profile) PersistenceDir() string    { return p.persistenceDir }
func (p *Profile) GPUInfo() []GPU            { return p.gpus }
func (p *Profile) Limits() Limits            { return p.limits }
func (p *Profile) IsContainerized() bool     { return p.containerized }
func (p *Profile) AllowsRawSignals() bool    { return p.allowsRawSignals }
func (p *Profile) HasCommand(name string) bool {
	if p.capabilities == nil {
		return false
	}
	return p.capabilities[name]
}

// ladderEntry is one rung of the detection ladder: a predicate and the class
// it identifies if the predicate matches.
type ladderEntry struct {
	class Class
	match func() bool
}

// Probe runs the detection ladder once and builds the immutable Profile.
// PLATFORM_OVERRIDE (spec.md §6.4) short-circuits the ladder for diagnostics.
func Probe() *Profile {
	class := detectClass()
	root := detectRoot(class)
	p := &Profile{
		class:            class,
		root:             root,
		tempDir:          os.TempDir(),
		persistenceDir:   detectPersistenceDir(class, root),
		gpus:             detectGPUs(),
		limits:           detectLimits(),
		capabilities:     detectCapabilities(),
		containerized:    detectContainerized(),
		allowsRawSignals: class != ClassColab, // Colab's sandboxing interferes with process-group signals
	}
	return p
}

func detectClass() Class {
	if override := os.Getenv("PLATFORM_OVERRIDE"); override != "" {
		return Class(override)
	}
	ladder := []ladderEntry{
		{ClassColab, func() bool { return os.Getenv("COLAB_GPU") != "" || dirExists("/content") }},
		{ClassVast, func() bool { return os.Getenv("VAST_CONTAINERLABEL") != "" }},
		{ClassLightningAI, func() bool { return os.Getenv("LIGHTNING_CLOUD_URL") != "" }},
		{ClassPaperspace, func() bool { return os.Getenv("PAPERSPACE_METRIC_SERVICE_URL") != "" || dirExists("/notebooks") }},
		{ClassRunPod, func() bool { return os.Getenv("RUNPOD_POD_ID") != "" }},
	}
	for _, e := range ladder {
		if e.match() {
			return e.class
		}
	}
	return ClassGenericLinux
}

func detectRoot(class Class) string {
	if root := os.Getenv("PINOKIO_ROOT"); root != "" {
		return root
	}
	switch class {
	case ClassColab:
		return "/content/orchestrator"
	case ClassPaperspace:
		return "/notebooks/orchestrator"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "/var/lib/orchestrator"
		}
		return home + "/.orchestrator"
	}
}

func detectPersistenceDir(class Class, root string) string {
	switch class {
	case ClassColab:
		if dirExists("/content/drive") {
			return "/content/drive/MyDrive/orchestrator"
		}
	}
	return root
}

func detectGPUs() []GPU {
	out, err := exec.Command("nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}
	return parseNvidiaSMI(string(out))
}

func detectLimits() Limits {
	return Limits{
		CPUCount: numCPU(),
	}
}

func detectCapabilities() map[string]bool {
	caps := map[string]bool{}
	for _, name := range []string{"conda", "node", "git", "npm", "docker", "cloudflared", "ngrok"} {
		if _, err := exec.LookPath(name); err == nil {
			caps[name] = true
		}
	}
	return caps
}

// detectContainerized checks /.dockerenv first, the cheap and definitive
// signal for "this process itself is inside a Docker container". Failing
// that it falls back to pinging a local Docker engine over
// github.com/docker/docker's own client (the pack's Docker SDK, used
// read-only here — this never creates, starts, or inspects a container),
// treating a reachable daemon as evidence of a container-capable host
// worth reporting through PlatformProfile.IsContainerized.
func detectContainerized() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return dockerEngineReachable()
}

func dockerEngineReachable() bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer func() { _ = cli.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = cli.Ping(ctx)
	return err == nil
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
