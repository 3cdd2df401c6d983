// Package samplesprovider adapts a built tracecontext.Builder into the
// stacksanalysis.SamplesProvider collaborator interface (spec §6.2),
// resolving each sample's raw instruction addresses into display frames
// through a symbolresolve.Resolver as it goes. This is the glue layer
// spec §6.3's "Analyze a process" operation is built from; neither
// tracecontext nor stacksanalysis import the other directly, so this
// package is where the two meet.
package samplesprovider

import (
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
	"github.com/gopherprof/tracecore/tracecontext"
	"github.com/gopherprof/tracecore/tracemodel"
)

// unknownModule is the display name used for an address that resolves to
// no loaded module (spec §6.2's SymbolResolver fallback is keyed by
// module filename; an address with no module at all needs a name to
// synthesize against).
const unknownModule = "[unknown]"

// Provider implements stacksanalysis.SamplesProvider over one
// tracecontext.Builder, resolving frames with resolver and optionally
// rewriting module paths with mapper.
type Provider struct {
	builder  *tracecontext.Builder
	resolver symbolresolve.Resolver
	mapper   *symbolresolve.PathMapper
}

// New returns a Provider over builder. mapper may be nil, in which case
// module filenames are shown exactly as tracecontext normalized them.
func New(builder *tracecontext.Builder, resolver symbolresolve.Resolver, mapper *symbolresolve.PathMapper) *Provider {
	return &Provider{builder: builder, resolver: resolver, mapper: mapper}
}

// Sources implements stacksanalysis.SamplesProvider.
func (p *Provider) Sources() []tracemodel.SampleSource {
	srcs := p.builder.Sources()
	out := make([]tracemodel.SampleSource, len(srcs))
	for i, s := range srcs {
		out[i] = *s
	}
	return out
}

// processThreads returns the set of ThreadKeys belonging to process, so
// Samples can filter Builder.Samples() (a flat, process-agnostic slice)
// down to one process without tracecontext needing its own
// process-scoped sample index.
func (p *Provider) processThreads(process tracemodel.ProcessKey) map[tracemodel.ThreadKey]bool {
	threads := p.builder.ThreadsOf(process)
	set := make(map[tracemodel.ThreadKey]bool, len(threads))
	for _, t := range threads {
		set[t.Key] = true
	}
	return set
}

// Samples implements stacksanalysis.SamplesProvider.
func (p *Provider) Samples(source tracemodel.SampleSourceID, process tracemodel.ProcessKey, filter stacksanalysis.Filter) stacksanalysis.SampleSequence {
	threads := p.processThreads(process)
	var matched []tracemodel.Sample
	for _, s := range p.builder.Samples() {
		if s.Source != source || !threads[s.ThreadID] {
			continue
		}
		if filter.ExcludeThreads[s.ThreadID] {
			continue
		}
		if !filter.Window.Includes(s.Timestamp) {
			continue
		}
		matched = append(matched, s)
	}
	return &sequence{provider: p, samples: matched}
}

// CountSamples implements stacksanalysis.SamplesProvider.
func (p *Provider) CountSamples(source tracemodel.SampleSourceID, process tracemodel.ProcessKey, filter stacksanalysis.Filter) int {
	threads := p.processThreads(process)
	n := 0
	for _, s := range p.builder.Samples() {
		if s.Source != source || !threads[s.ThreadID] {
			continue
		}
		if filter.ExcludeThreads[s.ThreadID] {
			continue
		}
		if !filter.Window.Includes(s.Timestamp) {
			continue
		}
		n++
	}
	return n
}

type sequence struct {
	provider *Provider
	samples  []tracemodel.Sample
	i        int
}

func (sq *sequence) Next() bool {
	if sq.i >= len(sq.samples) {
		return false
	}
	sq.i++
	return true
}

func (sq *sequence) Sample() stacksanalysis.SampleRecord {
	return record{provider: sq.provider, s: sq.samples[sq.i-1]}
}

func (sq *sequence) Err() error { return nil }

type record struct {
	provider *Provider
	s        tracemodel.Sample
}

func (r record) Timestamp() uint64 { return r.s.Timestamp }

func (r record) HasStack() bool {
	return r.s.UserStack != tracemodel.NoStack || r.s.KernelStack != tracemodel.NoStack
}

// ReversedStack resolves the sample's full call stack outermost-first.
// Kernel and user addresses were interned separately because they were
// split out of one leaf-first walk (tracecontext's splitFrames); the
// kernel run precedes the user run in that original order (a sample
// taken in kernel mode unwinds out through its kernel frames before
// reaching the user stack it interrupted), so the combined leaf-first
// sequence is kernel-frames ++ user-frames, and outermost-first is its
// reverse.
func (r record) ReversedStack() []stacksanalysis.Frame {
	kernel := r.provider.builder.StackFrames(r.s.KernelStack)
	user := r.provider.builder.StackFrames(r.s.UserStack)
	combined := make([]uint64, 0, len(kernel)+len(user))
	combined = append(combined, kernel...)
	combined = append(combined, user...)
	if len(combined) == 0 {
		combined = []uint64{r.s.IP}
	}
	out := make([]stacksanalysis.Frame, len(combined))
	for i, addr := range combined {
		out[len(combined)-1-i] = r.provider.resolve(r.s, addr)
	}
	return out
}

func (r record) Frame() stacksanalysis.Frame {
	return r.provider.resolve(r.s, r.s.IP)
}

// resolve looks up the module mapped over addr in the sample's process
// at its timestamp and resolves the address against it, falling back to
// an unknown-module frame when no module is mapped there (spec §4.7's
// tolerance for absent optional fields extends to "no module at all").
func (p *Provider) resolve(s tracemodel.Sample, addr uint64) stacksanalysis.Frame {
	thread := p.builder.ThreadProcess(s.ThreadID)
	mod := p.builder.LookupModule(thread, addr, s.Timestamp)
	if mod == nil {
		return stacksanalysis.Frame{ModuleName: unknownModule, Symbol: unknownModule}
	}
	info := symbolresolve.ModuleInfo{Filename: mod.Filename, Base: mod.Base, Size: mod.Size}
	if mod.PDB != nil {
		info.PDBName = mod.PDB.Name
		info.PDBGUID = mod.PDB.GUID
		info.PDBAge = mod.PDB.Age
	}
	info.BuildID = mod.BuildID
	f := p.resolver.Resolve(info, addr)
	if p.mapper != nil {
		f.ModuleName = p.mapper.Map(f.ModuleName)
	}
	return f
}
