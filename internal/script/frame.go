package script

import (
	"time"

	"github.com/loykin/orchestrator/internal/pathmap"
	"github.com/loykin/orchestrator/internal/vars"
	"github.com/loykin/orchestrator/internal/venv"
)

// skipped is the sentinel step output value used when a step's `when:`
// evaluated false — distinct from any real step output, including the
// empty string.
const skipped = "\x00skipped\x00"

// Frame is one ExecutionFrame: the top-level script gets one, and every
// script.start pushes another. A Frame never mutates process-wide state
// (CWD, env) — everything it needs is a field here.
type Frame struct {
	Doc   *Document
	Index int

	AppID      string
	InstallRoot string // "" for a fresh frame pushed by script.start with a uri
	Paths      *pathmap.Mapper
	Venv       *venv.Handle

	Args  map[string]string
	Local map[string]string // writes also flow to the engine's persistent localVars
	Env   map[string]string

	Input string // previous step's output, exposed as {{input}}

	Parent *Frame // nil for the top-level frame; script.return resumes here
	GPUs   []vars.GPU
	Platform string
	Arch     string

	// returning and jumpTo are transient signals the current step's
	// handler leaves for the Run loop: returning stops the frame at its
	// current Input (script.return), jumpTo overrides the next index
	// instead of a plain increment (jump).
	returning bool
	jumpTo    *int
}

// varsContext builds the vars.Context this frame presents to the resolver
// for the step at f.Index.
func (f *Frame) varsContext(allocatePort func() (int, error)) *vars.Context {
	self := map[string]string{}
	if f.Doc.Env != nil {
		for k, v := range f.Doc.Env {
			self[k] = v
		}
	}
	return &vars.Context{
		Platform:     f.Platform,
		Arch:         f.Arch,
		GPUs:         f.GPUs,
		CWD:          f.InstallRoot,
		App:          f.AppID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Input:        f.Input,
		Args:         f.Args,
		Local:        f.Local,
		Env:          f.Env,
		Self:         self,
		AllocatePort: allocatePort,
	}
}

// step returns the step at the frame's current index, or (nil, false) if
// the index has moved past the end — the normal completion condition.
func (f *Frame) step() (*Step, bool) {
	if f.Index < 0 || f.Index >= len(f.Doc.Run) {
		return nil, false
	}
	return &f.Doc.Run[f.Index], true
}

// setLocal writes into this frame's bindings only, per the spec's
// resolution of the local.set parent-frame ambiguity: current frame plus
// the engine's persistent bottom layer, never parent frames.
func (f *Frame) setLocal(k, v string) {
	if f.Local == nil {
		f.Local = map[string]string{}
	}
	f.Local[k] = v
}
