package server

import (
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
)

// stubResolver is a minimal symbolresolve.Resolver for tests that only
// need Analyze to run to completion, not to resolve anything meaningful.
type stubResolver struct{}

func (stubResolver) Resolve(module symbolresolve.ModuleInfo, addr uint64) stacksanalysis.Frame {
	return stacksanalysis.Frame{Symbol: "stub", ModuleName: module.Filename}
}
