package stacksanalysis

import "github.com/gopherprof/tracecore/tracemodel"

// Frame is one resolved stack frame, the same shape a SymbolResolver
// produces (spec §6.2): a symbol name, the module's display name, and
// optionally a source file and line.
type Frame struct {
	Symbol     string
	ModuleName string
	FilePath   string    // "" if unknown
	StartLine  int       // 0 if unknown
	Line       int       // 0 if unknown
}

// HasLocation reports whether f carries a resolved source file.
func (f Frame) HasLocation() bool { return f.FilePath != "" }

// TimeWindow restricts an analysis to samples with start <= timestamp <=
// end; a nil bound is unrestricted on that side.
type TimeWindow struct {
	Start *uint64
	End   *uint64
}

// Includes reports whether ts falls within the window.
func (w TimeWindow) Includes(ts uint64) bool {
	if w.Start != nil && ts < *w.Start {
		return false
	}
	if w.End != nil && ts > *w.End {
		return false
	}
	return true
}

// ModulePattern is one include/exclude rule over a module's display name,
// supporting '*' and '?' wildcards (path.Match syntax).
type ModulePattern struct {
	Pattern string
	Exclude bool
}

// Filter narrows the samples an analysis folds in (spec §4.7 inputs):
// a time window, excluded threads, and include/exclude module name
// patterns.
type Filter struct {
	Window          TimeWindow
	ExcludeThreads  map[tracemodel.ThreadKey]bool
	ModulePatterns  []ModulePattern
}

// SamplesProvider enumerates sample sources and the samples attributed to
// one process (spec §6.2). Implementations may stream samples lazily;
// Analyze never requires the full set materialized at once.
type SamplesProvider interface {
	// Sources lists every sample source known to the document.
	Sources() []tracemodel.SampleSource
	// Samples returns a sequence over the samples of source for
	// process, already narrowed by filter's time window and thread
	// exclusions (module-pattern filtering is the analyzer's own job,
	// since it depends on resolved frames the provider may not have
	// computed yet).
	Samples(source tracemodel.SampleSourceID, process tracemodel.ProcessKey, filter Filter) SampleSequence
	// CountSamples returns how many samples Samples would yield, for
	// sizing a progress reporter without a full pass.
	CountSamples(source tracemodel.SampleSourceID, process tracemodel.ProcessKey, filter Filter) int
}

// SampleSequence iterates the samples of one (source, process, filter)
// selection. Call Next before each Sample; stop when Next returns false
// and check Err.
type SampleSequence interface {
	Next() bool
	Sample() SampleRecord
	Err() error
}

// SampleRecord exposes one sample's resolved frame(s) without committing
// to a single representation: some providers only resolve the leaf frame
// cheaply, others carry the whole stack (spec §6.2).
type SampleRecord interface {
	Timestamp() uint64
	// HasStack reports whether ReversedStack is available; when false,
	// only Frame is meaningful (a leaf-only sample).
	HasStack() bool
	// ReversedStack returns every frame outermost-first.
	ReversedStack() []Frame
	// Frame returns the single resolved leaf frame.
	Frame() Frame
}
