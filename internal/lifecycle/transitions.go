package lifecycle

import (
	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

// legalTransitions is the closed transition table from spec.md §4.2: a
// map from the current state to the set of states a single operation may
// move it to. Any request not represented here fails with
// orcherr.KindIllegalState — the Lifecycle Manager never infers a
// transition that isn't listed.
var legalTransitions = map[registry.State]map[registry.State]bool{
	registry.StateAbsent:     {registry.StateInstalling: true},
	registry.StateInstalling: {registry.StateInstalled: true, registry.StateError: true, registry.StateAbsent: true},
	registry.StateInstalled:  {registry.StateStarting: true},
	// starting -> stopped is not in spec.md's literal table (which only
	// lists starting -> running / starting -> error) but is required for
	// a non-daemon ("daemon" unset) start script: it runs to completion
	// synchronously and was never meant to persist, so there is no
	// running process left to supervise once Start returns. Documented
	// in DESIGN.md as a resolved ambiguity rather than guessed silently.
	registry.StateStarting: {registry.StateRunning: true, registry.StateError: true, registry.StateStopped: true},
	registry.StateRunning:    {registry.StateStopping: true},
	registry.StateStopping:   {registry.StateStopped: true},
	registry.StateStopped:    {registry.StateStarting: true, registry.StateAbsent: true},
	// error -> absent is not listed in spec.md's transition table but is
	// required by its own uninstall(appId) contract ("requires stopped or
	// error"); resolved here as an additional legal edge rather than
	// forcing every caller through reset first.
	registry.StateError: {registry.StateInstalled: true, registry.StateStopped: true, registry.StateAbsent: true},
}

// checkTransition reports an orcherr.KindIllegalState error if moving from
// to is not one of the listed legal transitions.
func checkTransition(from, to registry.State) error {
	if legalTransitions[from][to] {
		return nil
	}
	return orcherr.New(orcherr.KindIllegalState, "illegal transition "+string(from)+" -> "+string(to))
}
