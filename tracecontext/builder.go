// Package tracecontext builds the time-versioned process/thread/module
// context used to resolve samples and stacks (spec §3.1, §4.6), the same
// way perfsession.Session accumulates per-PID state from a stream of
// records — generalized from perfsession's implicit (map-presence)
// process lifetime to explicit start/end intervals, since both Windows
// and Linux traces carry explicit process/thread/module lifetime events.
package tracecontext

import (
	"fmt"
	"sort"

	"github.com/gopherprof/tracecore/internal/ratestats"
	"github.com/gopherprof/tracecore/tracemodel"
)

// Builder accumulates tracemodel entities from a stream of dispatched
// records and answers the time-sliced queries spec §4.6 requires.
type Builder struct {
	processes   map[int][]*tracemodel.Process // OS pid -> time-ordered versions
	threads     map[int][]*tracemodel.Thread  // OS tid -> time-ordered versions
	modules     map[tracemodel.ProcessKey][]*tracemodel.Module
	samples     []tracemodel.Sample
	sources     map[tracemodel.SampleSourceID]*tracemodel.SampleSource

	stackTable  map[string]tracemodel.StackID
	stackFrames [][]uint64
	nextStackID tracemodel.StackID
	stackByKey  map[uint64]tracemodel.StackID

	nextProcessKey tracemodel.ProcessKey
	nextThreadKey  tracemodel.ThreadKey

	ptrSize        int
	pendingSamples map[sampleKey]pendingSlot
	pmcSourceNames map[uint32]string

	paths          *PathNormalizer
	sysInfo        tracemodel.SystemInfo
	timerFrequency float64 // ticks per second, for SampleSource.AvgRate
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		processes:  make(map[int][]*tracemodel.Process),
		threads:    make(map[int][]*tracemodel.Thread),
		modules:    make(map[tracemodel.ProcessKey][]*tracemodel.Module),
		sources:    make(map[tracemodel.SampleSourceID]*tracemodel.SampleSource),
		stackTable: make(map[string]tracemodel.StackID),
		paths:      NewPathNormalizer(),
		nextStackID: tracemodel.NoStack + 1,
	}
}

// StartProcess opens a new Process version for osPID at start, closing
// any still-open version (a defunct process whose End event was lost, or
// a PID reused without an intervening exit in the trace). A start/DC-start
// duplicate at the same timestamp as the currently open version is
// merged into it rather than creating a second version (spec §4.6).
func (b *Builder) StartProcess(osPID int, start uint64, imageName, commandLine string) *tracemodel.Process {
	versions := b.processes[osPID]
	if n := len(versions); n > 0 && versions[n-1].End == nil {
		if versions[n-1].Start == start {
			if imageName != "" {
				versions[n-1].ImageName = imageName
			}
			if commandLine != "" {
				versions[n-1].CommandLine = commandLine
			}
			return versions[n-1]
		}
		b.endProcessVersion(versions[n-1], start)
	}
	b.nextProcessKey++
	p := &tracemodel.Process{
		Key: b.nextProcessKey, OSPID: osPID, Start: start,
		ImageName: imageName, CommandLine: commandLine,
	}
	b.processes[osPID] = append(b.processes[osPID], p)
	return p
}

// EndProcess closes the currently-open version of osPID, if any.
func (b *Builder) EndProcess(osPID int, end uint64) {
	versions := b.processes[osPID]
	if n := len(versions); n > 0 && versions[n-1].End == nil {
		b.endProcessVersion(versions[n-1], end)
	}
}

func (b *Builder) endProcessVersion(p *tracemodel.Process, end uint64) {
	e := end
	p.End = &e
}

// LookupProcess returns the Process version of osPID alive at timestamp
// ts, or nil if none is open at that time.
func (b *Builder) LookupProcess(osPID int, ts uint64) *tracemodel.Process {
	versions := b.processes[osPID]
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Start > ts })
	if i == 0 {
		return nil
	}
	p := versions[i-1]
	if p.End != nil && *p.End < ts {
		return nil
	}
	return p
}

// StartThread opens a new Thread version for osTID under process at
// start, merging a start/DC-start duplicate at the same timestamp into
// the currently open version instead of creating a second one (spec
// §4.6, mirroring StartProcess).
func (b *Builder) StartThread(osTID int, process tracemodel.ProcessKey, start uint64, name string) *tracemodel.Thread {
	versions := b.threads[osTID]
	if n := len(versions); n > 0 && versions[n-1].End == nil {
		if versions[n-1].Start == start {
			if name != "" {
				versions[n-1].Name = name
			}
			return versions[n-1]
		}
		b.endThreadVersion(versions[n-1], start)
	}
	b.nextThreadKey++
	t := &tracemodel.Thread{
		Key: b.nextThreadKey, OSTID: osTID, ProcessID: process, Start: start, Name: name,
	}
	b.threads[osTID] = append(b.threads[osTID], t)
	return t
}

// EndThread closes the currently-open version of osTID, if any.
func (b *Builder) EndThread(osTID int, end uint64) {
	versions := b.threads[osTID]
	if n := len(versions); n > 0 && versions[n-1].End == nil {
		b.endThreadVersion(versions[n-1], end)
	}
}

func (b *Builder) endThreadVersion(t *tracemodel.Thread, end uint64) {
	e := end
	t.End = &e
}

// LookupThread returns the Thread version of osTID alive at timestamp ts.
func (b *Builder) LookupThread(osTID int, ts uint64) *tracemodel.Thread {
	versions := b.threads[osTID]
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Start > ts })
	if i == 0 {
		return nil
	}
	t := versions[i-1]
	if t.End != nil && *t.End < ts {
		return nil
	}
	return t
}

// SetThreadName renames the open version of osTID (Windows thread/2
// version-2 "set thread name" events arrive independently of thread
// start).
func (b *Builder) SetThreadName(osTID int, ts uint64, name string) {
	if t := b.LookupThread(osTID, ts); t != nil {
		t.Name = name
	}
}

// LoadModule opens a new Module version mapped into process at
// [base, base+size).
func (b *Builder) LoadModule(process tracemodel.ProcessKey, base, size, start uint64, rawFilename string) *tracemodel.Module {
	m := &tracemodel.Module{
		ProcessID: process, Base: base, Size: size, Start: start,
		RawFilename: rawFilename, Filename: b.paths.Normalize(rawFilename),
	}
	b.modules[process] = append(b.modules[process], m)
	return m
}

// UnloadModule closes the Module version of process mapped at base.
func (b *Builder) UnloadModule(process tracemodel.ProcessKey, base uint64, end uint64) {
	for _, m := range b.modules[process] {
		if m.Base == base && m.End == nil {
			e := end
			m.End = &e
			return
		}
	}
}

// LookupModule returns the Module mapped over addr in process at
// timestamp ts, or nil.
func (b *Builder) LookupModule(process tracemodel.ProcessKey, addr uint64, ts uint64) *tracemodel.Module {
	for _, m := range b.modules[process] {
		if m.Start > ts || (m.End != nil && *m.End < ts) {
			continue
		}
		if addr >= m.Base && addr < m.Base+m.Size {
			return m
		}
	}
	return nil
}

// InternStack assigns a content-addressed StackID to a sequence of
// addresses (leaf-first), returning the same ID for an identical sequence
// seen before (spec §3.1 Stack, §4.6 stack interning).
func (b *Builder) InternStack(addrs []uint64) tracemodel.StackID {
	if len(addrs) == 0 {
		return tracemodel.NoStack
	}
	key := stackKey(addrs)
	if id, ok := b.stackTable[key]; ok {
		return id
	}
	id := b.nextStackID
	b.nextStackID++
	b.stackTable[key] = id
	b.stackFrames = append(b.stackFrames, addrs)
	return id
}

// StackFrames returns the address sequence interned as id, or nil if id
// is unknown.
func (b *Builder) StackFrames(id tracemodel.StackID) []uint64 {
	if id == tracemodel.NoStack {
		return nil
	}
	idx := int(id) - int(tracemodel.NoStack) - 1
	if idx < 0 || idx >= len(b.stackFrames) {
		return nil
	}
	return b.stackFrames[idx]
}

func stackKey(addrs []uint64) string {
	// A plain fmt-based key is sufficient here: stacks are interned once
	// per unique sequence during the build pass, not on the query hot
	// path.
	return fmt.Sprint(addrs)
}

// AddSample records one sample against the given or newly created source.
func (b *Builder) AddSample(s tracemodel.Sample, sourceName string) {
	if _, ok := b.sources[s.Source]; !ok {
		b.sources[s.Source] = &tracemodel.SampleSource{ID: s.Source, Name: sourceName, HasStacks: true}
	}
	b.sources[s.Source].IncSamples()
	b.samples = append(b.samples, s)
}

// Samples returns every recorded sample, in the order they were added
// (the order File.Walk dispatched their underlying records).
func (b *Builder) Samples() []tracemodel.Sample { return b.samples }

// Sources returns every sample source seen, in no particular order, with
// AvgRate populated from the source's observed sample timestamps (spec
// §3.1 SampleSource.average-sampling-rate; SPEC_FULL §B wires
// go-moremath/stats for this via internal/ratestats).
func (b *Builder) Sources() []*tracemodel.SampleSource {
	timestamps := make(map[tracemodel.SampleSourceID][]uint64, len(b.sources))
	for _, s := range b.samples {
		timestamps[s.Source] = append(timestamps[s.Source], s.Timestamp)
	}
	out := make([]*tracemodel.SampleSource, 0, len(b.sources))
	for id, s := range b.sources {
		s.AvgRate = ratestats.Average(timestamps[id], b.timerFrequency)
		out = append(out, s)
	}
	return out
}
