package symbolresolve

import (
	"debug/dwarf"
	"debug/elf"
	"io"
	"sort"
	"sync"

	"github.com/gopherprof/tracecore/stacksanalysis"
)

// funcRange is one function's address extent, the unit dwarfTable binary
// searches over (adapted from perfsession's DWARF subprogram walk,
// generalized to also record the declaring file and start line so
// stacksanalysis can populate FunctionEntry.StartLine/HitsByLine).
type funcRange struct {
	name      string
	file      string
	startLine int
	lowpc     uint64
	highpc    uint64
}

// dwarfTable is the per-module debug data a DWARFResolver loads once and
// reuses for every address in that module.
type dwarfTable struct {
	funcs []funcRange       // sorted by lowpc
	lines []dwarf.LineEntry // sorted by Address
	err   error             // set if loading failed; addresses fall back silently
}

// DWARFResolver resolves addresses against ELF binaries carrying DWARF
// debug info (Linux modules, located by their on-disk path), caching
// one dwarfTable per module so repeated addresses in the same module
// don't re-parse DWARF (the same per-filename cache perfsession's
// getSymbolicExtra keeps, generalized from a single Session's lifetime to
// any Resolver's lifetime).
type DWARFResolver struct {
	mu     sync.Mutex
	tables map[string]*dwarfTable // keyed by ModuleInfo.Filename
}

// NewDWARFResolver returns a Resolver with no modules loaded yet.
func NewDWARFResolver() *DWARFResolver {
	return &DWARFResolver{tables: make(map[string]*dwarfTable)}
}

// Resolve implements Resolver.
func (r *DWARFResolver) Resolve(module ModuleInfo, addr uint64) stacksanalysis.Frame {
	f := stacksanalysis.Frame{ModuleName: module.Filename}
	t := r.tableFor(module)
	if t == nil || t.err != nil {
		f.Symbol = synthesizeSymbol(module.Filename, addr)
		return f
	}

	// addr arrives as an absolute runtime address; DWARF low/high pc
	// values are link-time addresses within the module, so rebase by the
	// module's load base the same way a debugger would before doing the
	// lookup.
	linked := addr
	if addr >= module.Base {
		linked = addr - module.Base
	}

	fn := findFunc(t.funcs, linked)
	if fn == nil {
		f.Symbol = synthesizeSymbol(module.Filename, addr)
		return f
	}
	f.Symbol = demangleName(fn.name)
	f.FilePath = fn.file
	f.StartLine = fn.startLine
	if line := findLine(t.lines, linked); line != nil {
		f.Line = line.Line
	}
	return f
}

func (r *DWARFResolver) tableFor(module ModuleInfo) *dwarfTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[module.Filename]; ok {
		return t
	}
	t := loadDWARFTable(module.Filename)
	r.tables[module.Filename] = t
	return t
}

// loadDWARFTable reads module's ELF and DWARF sections, adapted from
// perfsession.newSymbolicExtra/dwarfFuncTable/dwarfLineTable: same ELF
// open + dwarf Reader walk, generalized to also attach each function's
// declaring file and start line (looked up from the line table at the
// function's entry address, rather than a separate DW_AT_decl_file pass)
// so stacksanalysis can populate FunctionEntry.File/StartLine.
func loadDWARFTable(filename string) *dwarfTable {
	if filename == "" {
		return &dwarfTable{}
	}
	elff, err := elf.Open(filename)
	if err != nil {
		return &dwarfTable{err: err}
	}
	defer elff.Close()

	if elff.Section(".debug_info") == nil {
		return &dwarfTable{err: errNoDebugInfo}
	}
	dwarff, err := elff.DWARF()
	if err != nil {
		return &dwarfTable{err: err}
	}

	t := &dwarfTable{}
	t.lines = dwarfLineTable(dwarff)
	t.funcs = dwarfFuncTable(dwarff, t.lines)
	return t
}

var errNoDebugInfo = &dwarfError{"no DWARF info"}

type dwarfError struct{ msg string }

func (e *dwarfError) Error() string { return e.msg }

func dwarfFuncTable(dwarff *dwarf.Data, lines []dwarf.LineEntry) []funcRange {
	r := dwarff.Reader()
	var out []funcRange
	for {
		ent, err := r.Next()
		if ent == nil || err != nil {
			break
		}
		switch ent.Tag {
		case dwarf.TagSubprogram:
			r.SkipChildren()
			name, ok := ent.Val(dwarf.AttrName).(string)
			if !ok {
				continue
			}
			lowpc, ok := ent.Val(dwarf.AttrLowpc).(uint64)
			if !ok {
				continue
			}
			var highpc uint64
			switch v := ent.Val(dwarf.AttrHighpc).(type) {
			case uint64:
				highpc = v
			case int64:
				highpc = lowpc + uint64(v)
			default:
				continue
			}
			fr := funcRange{name: name, lowpc: lowpc, highpc: highpc}
			if entry := findLine(lines, lowpc); entry != nil && entry.File != nil {
				fr.file = entry.File.Name
				fr.startLine = entry.Line
			}
			out = append(out, fr)
		case dwarf.TagCompileUnit, dwarf.TagModule, dwarf.TagNamespace:
		default:
			r.SkipChildren()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lowpc < out[j].lowpc })
	return out
}

func dwarfLineTable(dwarff *dwarf.Data) []dwarf.LineEntry {
	var out []dwarf.LineEntry
	dr := dwarff.Reader()
	for {
		ent, err := dr.Next()
		if ent == nil || err != nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			dr.SkipChildren()
			continue
		}
		lr, err := dwarff.LineReader(ent)
		if err != nil || lr == nil {
			continue
		}
		for {
			var lent dwarf.LineEntry
			err := lr.Next(&lent)
			if err == io.EOF {
				break
			}
			if err != nil {
				// This CU's remaining entries are untrustworthy; stop
				// here and keep what was read from earlier CUs.
				break
			}
			out = append(out, lent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func findFunc(funcs []funcRange, addr uint64) *funcRange {
	i := sort.Search(len(funcs), func(i int) bool { return addr < funcs[i].highpc })
	if i < len(funcs) && funcs[i].lowpc <= addr && addr < funcs[i].highpc {
		return &funcs[i]
	}
	return nil
}

func findLine(lines []dwarf.LineEntry, addr uint64) *dwarf.LineEntry {
	i := sort.Search(len(lines), func(i int) bool { return addr < lines[i].Address })
	if i == 0 || lines[i-1].EndSequence {
		return nil
	}
	return &lines[i-1]
}
