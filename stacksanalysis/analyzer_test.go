package stacksanalysis

import (
	"testing"

	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/tracemodel"
)

// fakeRecord is a single in-memory sample used by fakeSequence below.
type fakeRecord struct {
	ts     uint64
	frames []Frame // outermost-first
}

func (r fakeRecord) Timestamp() uint64      { return r.ts }
func (r fakeRecord) HasStack() bool         { return true }
func (r fakeRecord) ReversedStack() []Frame { return r.frames }
func (r fakeRecord) Frame() Frame           { return r.frames[len(r.frames)-1] }

type fakeSequence struct {
	records []fakeRecord
	i       int
}

func (s *fakeSequence) Next() bool {
	if s.i >= len(s.records) {
		return false
	}
	s.i++
	return true
}
func (s *fakeSequence) Sample() SampleRecord { return s.records[s.i-1] }
func (s *fakeSequence) Err() error           { return nil }

// fakeProvider serves a fixed set of samples for one source, regardless
// of the process or filter requested, which is all these tests exercise.
type fakeProvider struct {
	source  tracemodel.SampleSource
	records []fakeRecord
}

func (p *fakeProvider) Sources() []tracemodel.SampleSource { return []tracemodel.SampleSource{p.source} }
func (p *fakeProvider) Samples(tracemodel.SampleSourceID, tracemodel.ProcessKey, Filter) SampleSequence {
	return &fakeSequence{records: p.records}
}
func (p *fakeProvider) CountSamples(tracemodel.SampleSourceID, tracemodel.ProcessKey, Filter) int {
	return len(p.records)
}

func frame(symbol, module string) Frame {
	return Frame{Symbol: symbol, ModuleName: module}
}

func TestAnalyzeBasicTotals(t *testing.T) {
	src := tracemodel.SampleSource{ID: 0, Name: "Timer"}
	p := &fakeProvider{
		source: src,
		records: []fakeRecord{
			{ts: 1, frames: []Frame{frame("main", "a.exe"), frame("work", "a.exe"), frame("leaf", "a.exe")}},
			{ts: 2, frames: []Frame{frame("main", "a.exe"), frame("other", "a.exe"), frame("leaf", "a.exe")}},
		},
	}
	a, err := Analyze(p, 1, Filter{}, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !a.Complete {
		t.Fatalf("expected a complete analysis")
	}

	var main, leaf *FunctionEntry
	for _, f := range a.Functions {
		switch f.Name {
		case "main":
			main = f
		case "leaf":
			leaf = f
		}
	}
	if main == nil || leaf == nil {
		t.Fatalf("expected both main and leaf functions in the catalog, got %+v", a.Functions)
	}
	if got := hitsTotal(main, src.ID); got != 2 {
		t.Fatalf("main total = %d, want 2 (present in both stacks)", got)
	}
	if got := hitsSelf(main, src.ID); got != 0 {
		t.Fatalf("main self = %d, want 0 (never innermost)", got)
	}
	if got := hitsTotal(leaf, src.ID); got != 2 {
		t.Fatalf("leaf total = %d, want 2", got)
	}
	if got := hitsSelf(leaf, src.ID); got != 2 {
		t.Fatalf("leaf self = %d, want 2 (innermost on every sample)", got)
	}
}

func TestAnalyzeRecursionCountsFunctionOnce(t *testing.T) {
	src := tracemodel.SampleSource{ID: 0, Name: "Timer"}
	p := &fakeProvider{
		source: src,
		records: []fakeRecord{
			{ts: 1, frames: []Frame{frame("recurse", "a.exe"), frame("recurse", "a.exe"), frame("recurse", "a.exe")}},
		},
	}
	a, err := Analyze(p, 1, Filter{}, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var fn *FunctionEntry
	for _, f := range a.Functions {
		if f.Name == "recurse" {
			fn = f
		}
	}
	if fn == nil {
		t.Fatalf("expected a recurse function entry")
	}
	if got := hitsTotal(fn, src.ID); got != 1 {
		t.Fatalf("recursive function total = %d, want 1 (one distinct function per sample, however many frames)", got)
	}
	if got := hitsSelf(fn, src.ID); got != 1 {
		t.Fatalf("recursive function self = %d, want 1", got)
	}
}

func TestAnalyzeCallerCalleeAndModuleFilter(t *testing.T) {
	src := tracemodel.SampleSource{ID: 0, Name: "Timer"}
	p := &fakeProvider{
		source: src,
		records: []fakeRecord{
			{ts: 1, frames: []Frame{frame("main", "a.exe"), frame("libcall", "lib.dll")}},
			{ts: 2, frames: []Frame{frame("skipouter", "excluded.dll"), frame("skip", "excluded.dll")}},
		},
	}
	filter := Filter{ModulePatterns: []ModulePattern{{Pattern: "excluded.dll", Exclude: true}}}
	a, err := Analyze(p, 1, filter, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var main, skip *FunctionEntry
	for _, f := range a.Functions {
		switch f.Name {
		case "main":
			main = f
		case "skip":
			skip = f
		}
	}
	if skip != nil {
		t.Fatalf("excluded module's frame should not appear in the catalog, got %+v", skip)
	}
	if main == nil {
		t.Fatalf("expected a main function entry")
	}
	if got := hitsTotal(main, src.ID); got != 1 {
		t.Fatalf("main total = %d, want 1 (the second sample's stack is entirely filtered out)", got)
	}

	var libcall *FunctionEntry
	for _, f := range a.Functions {
		if f.Name == "libcall" {
			libcall = f
		}
	}
	if libcall == nil {
		t.Fatalf("expected a libcall function entry")
	}
	callers := main.Callees[libcall.ID]
	if callers == nil || callers[src.ID] == nil || callers[src.ID].Total != 1 {
		t.Fatalf("main.Callees[libcall] = %+v, want total 1", callers)
	}
	parentCounts := libcall.Callers[main.ID]
	if parentCounts == nil || parentCounts[src.ID] == nil || parentCounts[src.ID].Total != 1 {
		t.Fatalf("libcall.Callers[main] = %+v, want total 1", parentCounts)
	}
}

func TestAnalyzeCancellationReturnsPartialResult(t *testing.T) {
	src := tracemodel.SampleSource{ID: 0, Name: "Timer"}
	p := &fakeProvider{
		source: src,
		records: []fakeRecord{
			{ts: 1, frames: []Frame{frame("a", "m")}},
			{ts: 2, frames: []Frame{frame("b", "m")}},
		},
	}
	token := progress.NewToken()
	token.Cancel()
	a, err := Analyze(p, 1, Filter{}, nil, token)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Complete {
		t.Fatalf("expected Complete == false after cancellation")
	}
}

func TestListFunctionsOrderingAndPaging(t *testing.T) {
	src := tracemodel.SampleSource{ID: 0, Name: "Timer"}
	p := &fakeProvider{
		source: src,
		records: []fakeRecord{
			{ts: 1, frames: []Frame{frame("a", "m")}},
			{ts: 2, frames: []Frame{frame("b", "m")}},
			{ts: 3, frames: []Frame{frame("b", "m")}},
			{ts: 4, frames: []Frame{frame("c", "m")}},
		},
	}
	a, err := Analyze(p, 1, Filter{}, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	byTotal := a.ListFunctions(src.ID, SortByTotal, 0, 0)
	if len(byTotal) != 3 {
		t.Fatalf("expected 3 non-root functions, got %d", len(byTotal))
	}
	if byTotal[0].Name != "b" {
		t.Fatalf("ListFunctions(SortByTotal)[0] = %q, want %q", byTotal[0].Name, "b")
	}

	page := a.ListFunctions(src.ID, SortByName, 1, 1)
	if len(page) != 1 || page[0].Name != "b" {
		t.Fatalf("ListFunctions(SortByName, offset=1, limit=1) = %+v, want [b]", page)
	}
}
