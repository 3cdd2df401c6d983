// Package symbolresolve implements the SymbolResolver and PathMapper
// collaborator interfaces of spec §6.2: turning a module and an address
// into a human-readable frame, and turning a module's raw filename into
// the path a user should see. Everything here is a pure function of
// already-loaded binaries and rules — no trace-format knowledge lives in
// this package.
package symbolresolve

import (
	"fmt"

	"github.com/gopherprof/tracecore/stacksanalysis"
)

// ModuleInfo is the information a SymbolResolver needs to locate and
// interpret a module's debug data (spec §6.2's "(module filename, base,
// size, optional {pdb-name, guid, age} or build-id)").
type ModuleInfo struct {
	Filename string
	Base     uint64
	Size     uint64

	// Windows PDB identification, when known.
	PDBName string
	PDBGUID [16]byte
	PDBAge  uint32

	// Linux build-id, when known.
	BuildID []byte
}

// Resolver turns addresses within known modules into display frames
// (spec §6.2 SymbolResolver). Implementations may cache per-module state
// keyed by Filename+BuildID/PDB identity; callers are expected to reuse
// one Resolver across an entire analysis rather than construct one per
// address.
type Resolver interface {
	// Resolve returns the frame for addr within module. Unresolved
	// addresses still return a frame, with Symbol synthesized as
	// "<module-filename>!<hex-address>" per spec §6.2.
	Resolve(module ModuleInfo, addr uint64) stacksanalysis.Frame
}

// synthesizeSymbol builds the spec's fallback symbol name for an address
// with no debug information.
func synthesizeSymbol(moduleFilename string, addr uint64) string {
	return fmt.Sprintf("%s!0x%x", moduleFilename, addr)
}
