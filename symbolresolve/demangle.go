package symbolresolve

import "github.com/ianlancetaylor/demangle"

// demangleName returns name demangled if it looks like an Itanium C++ or
// Rust mangled symbol, or name unchanged otherwise (SPEC_FULL §B wires
// the teacher's own ianlancetaylor/demangle dependency in here, since
// spec §6.2's SymbolResolver is the one place a raw linker symbol becomes
// a user-visible function name). demangle.Filter already implements
// exactly this "demangle if recognized, else pass through" contract, so
// there is nothing for this wrapper to add beyond a descriptive name at
// the call site in dwarf.go.
func demangleName(name string) string {
	return demangle.Filter(name)
}
