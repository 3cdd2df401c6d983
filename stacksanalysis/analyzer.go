package stacksanalysis

import (
	"path"
	"strings"

	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/tracemodel"
)

// funcKey identifies a function catalog entry by its (name, module) pair;
// the same symbol name in two different modules is two distinct
// functions (spec §4.7 step 3).
type funcKey struct {
	name   string
	module ModuleID
}

// analyzer holds the mutable catalogs and call tree while Analyze folds
// in samples; Analysis is its frozen, read-only result.
type analyzer struct {
	functions   []*FunctionEntry
	funcIndex   map[funcKey]FunctionID
	modules     []*ModuleEntry
	moduleIndex map[string]ModuleID
	files       []*FileEntry
	fileIndex   map[string]FileID
	nodes       []*CallTreeNode
	sources     []tracemodel.SampleSourceID
	seenSource  map[tracemodel.SampleSourceID]bool
}

// newAnalyzer initializes the function, module, and file catalogs and the
// call-tree root with its synthetic function (spec §4.7 step 1).
func newAnalyzer() *analyzer {
	a := &analyzer{
		funcIndex:   make(map[funcKey]FunctionID),
		moduleIndex: make(map[string]ModuleID),
		fileIndex:   make(map[string]FileID),
		seenSource:  make(map[tracemodel.SampleSourceID]bool),
	}
	root := &FunctionEntry{ID: RootFunction, Name: "[root]", File: noFile}
	a.functions = append(a.functions, root)
	a.nodes = append(a.nodes, &CallTreeNode{
		ID: RootNode, Parent: RootNode, Function: RootFunction,
		childByFunc: make(map[FunctionID]NodeID),
	})
	return a
}

func (a *analyzer) moduleEntry(name string) ModuleID {
	if id, ok := a.moduleIndex[name]; ok {
		return id
	}
	id := ModuleID(len(a.modules))
	a.modules = append(a.modules, &ModuleEntry{ID: id, Name: name})
	a.moduleIndex[name] = id
	return id
}

func (a *analyzer) fileEntry(path string) FileID {
	if path == "" {
		return noFile
	}
	if id, ok := a.fileIndex[path]; ok {
		return id
	}
	id := FileID(len(a.files))
	a.files = append(a.files, &FileEntry{ID: id, Path: path})
	a.fileIndex[path] = id
	return id
}

func (a *analyzer) functionEntry(name string, module ModuleID, file FileID, startLine int) FunctionID {
	key := funcKey{name: name, module: module}
	if id, ok := a.funcIndex[key]; ok {
		f := a.functions[id]
		if f.File == noFile && file != noFile {
			f.File = file
			f.StartLine = startLine
		}
		return id
	}
	id := FunctionID(len(a.functions))
	a.functions = append(a.functions, &FunctionEntry{
		ID: id, Name: name, Module: module, File: file, StartLine: startLine,
	})
	a.funcIndex[key] = id
	return id
}

func (a *analyzer) childNode(parent NodeID, fn FunctionID) NodeID {
	p := a.nodes[parent]
	if id, ok := p.childByFunc[fn]; ok {
		return id
	}
	id := NodeID(len(a.nodes))
	n := &CallTreeNode{ID: id, Parent: parent, Function: fn, childByFunc: make(map[FunctionID]NodeID)}
	a.nodes = append(a.nodes, n)
	p.Children = append(p.Children, id)
	p.childByFunc[fn] = id
	return id
}

func (a *analyzer) markSource(source tracemodel.SampleSourceID) {
	if !a.seenSource[source] {
		a.seenSource[source] = true
		a.sources = append(a.sources, source)
	}
}

// matchModule reports whether name passes filter's include/exclude
// module patterns: the last matching pattern wins, and a name with no
// matching pattern at all is included (spec §4.7 inputs, "included/
// excluded module name patterns with wildcards").
func matchModule(name string, patterns []ModulePattern) bool {
	keep := true
	for _, p := range patterns {
		if ok, _ := path.Match(p.Pattern, name); ok {
			keep = !p.Exclude
		}
	}
	return keep
}

// Analyze folds every sample of process across all of provider's sample
// sources into a StacksAnalysis (spec §4.7). listener and token may be
// nil. A cancelled run returns its partial result with Complete == false
// rather than an error (spec §4.7 step 7, §4.8).
func Analyze(provider SamplesProvider, process tracemodel.ProcessKey, filter Filter, listener progress.Listener, token *progress.Token) (*Analysis, error) {
	a := newAnalyzer()

	total := 0
	for _, src := range provider.Sources() {
		total += provider.CountSamples(src.ID, process, filter)
	}
	reporter := progress.NewReporter(listener, total)
	reporter.Start("Analyzing stacks", "")

	complete := true
sources:
	for _, src := range provider.Sources() {
		seq := provider.Samples(src.ID, process, filter)
		for seq.Next() {
			if token.Cancelled() {
				complete = false
				break sources
			}
			s := seq.Sample()
			if !filter.Window.Includes(s.Timestamp()) {
				reporter.Advance(1)
				continue
			}
			frames := resolveFrames(s)
			if len(frames) == 0 {
				reporter.Advance(1)
				continue
			}
			if !anyFrameSurvives(frames, filter.ModulePatterns) {
				reporter.Advance(1)
				continue
			}
			a.foldSample(src.ID, frames)
			reporter.Advance(1)
		}
		if err := seq.Err(); err != nil {
			return nil, err
		}
	}
	if complete {
		reporter.Finish("")
	}

	return &Analysis{
		Functions: a.functions,
		Modules:   a.modules,
		Files:     a.files,
		Nodes:     a.nodes,
		Sources:   a.sources,
		Complete:  complete,
	}, nil
}

// resolveFrames returns s's stack outermost-first, synthesizing a
// one-frame stack from Frame() when the provider has no full stack
// (spec §4.7 step 2).
func resolveFrames(s SampleRecord) []Frame {
	if s.HasStack() {
		return s.ReversedStack()
	}
	f := s.Frame()
	if f.Symbol == "" && f.ModuleName == "" {
		return nil
	}
	return []Frame{f}
}

// anyFrameSurvives reports whether at least one frame in frames is not
// filtered out by module patterns; a sample whose every frame belongs to
// an excluded module contributes nothing (spec §4.7 step 2).
func anyFrameSurvives(frames []Frame, patterns []ModulePattern) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, f := range frames {
		if matchModule(f.ModuleName, patterns) {
			return true
		}
	}
	return false
}

// foldSample walks frames outermost-first, updating every catalog, the
// call tree, the caller/callee maps, and line hits for one sample (spec
// §4.7 steps 3-6).
func (a *analyzer) foldSample(source tracemodel.SampleSourceID, frames []Frame) {
	a.markSource(source)

	node := RootNode
	seenFunc := make(map[FunctionID]bool, len(frames))
	seenModule := make(map[ModuleID]bool, len(frames))
	seenFile := make(map[FileID]bool, len(frames))

	var prevFunc FunctionID
	havePrev := false

	for i, fr := range frames {
		module := a.moduleEntry(fr.ModuleName)
		file := a.fileEntry(fr.FilePath)
		fn := a.functionEntry(fr.Symbol, module, file, fr.StartLine)
		node = a.childNode(node, fn)

		innermost := i == len(frames)-1

		if !seenFunc[fn] {
			seenFunc[fn] = true
			a.functions[fn].Hits.addTotal(source, 1)
		}
		if innermost {
			a.functions[fn].Hits.addSelf(source, 1)
		}

		if !seenModule[module] {
			seenModule[module] = true
			a.modules[module].Hits.addTotal(source, 1)
		}
		if innermost {
			a.modules[module].Hits.addSelf(source, 1)
		}

		if file != noFile {
			if !seenFile[file] {
				seenFile[file] = true
				a.files[file].Hits.addTotal(source, 1)
			}
			if innermost {
				a.files[file].Hits.addSelf(source, 1)
			}
		}

		a.nodes[node].Hits.addTotal(source, 1)
		if innermost {
			a.nodes[node].Hits.addSelf(source, 1)
		}

		if fr.Line != 0 && a.functions[fn].StartLine != 0 {
			f := a.functions[fn]
			if f.HitsByLine == nil {
				f.HitsByLine = make(map[int]SourceCounts)
			}
			lc := f.HitsByLine[fr.Line]
			lc.addTotal(source, 1)
			f.HitsByLine[fr.Line] = lc
			if innermost {
				lc.addSelf(source, 1)
				f.HitsByLine[fr.Line] = lc
			}
		}

		if havePrev {
			a.addEdge(prevFunc, fn, source, innermost)
		}
		prevFunc, havePrev = fn, true
	}
}

// addEdge records that caller called callee: caller's callees[callee] and
// callee's callers[caller] both advance their total; when callee is the
// walk's innermost frame, the self variants also advance (spec §4.7
// step 5).
func (a *analyzer) addEdge(caller, callee FunctionID, source tracemodel.SampleSourceID, innermost bool) {
	cf := a.functions[caller]
	ef := a.functions[callee]
	if cf.Callees == nil {
		cf.Callees = make(map[FunctionID]SourceCounts)
	}
	if ef.Callers == nil {
		ef.Callers = make(map[FunctionID]SourceCounts)
	}
	calleeCounts := cf.Callees[callee]
	calleeCounts.addTotal(source, 1)
	cf.Callees[callee] = calleeCounts

	callerCounts := ef.Callers[caller]
	callerCounts.addTotal(source, 1)
	ef.Callers[caller] = callerCounts

	if innermost {
		calleeCounts.addSelf(source, 1)
		cf.Callees[callee] = calleeCounts
		callerCounts.addSelf(source, 1)
		ef.Callers[caller] = callerCounts
	}
}

// trimmedModuleName returns a module's base name rather than its full
// path. Nothing in this package calls it.
func trimmedModuleName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
