package tracecontext

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
	"github.com/gopherprof/tracecore/linuxtrace"
	"github.com/gopherprof/tracecore/tracemodel"
	"github.com/gopherprof/tracecore/winrecord"
)

// binaryPutGUID flattens a bytesview.GUID into the tracemodel.Module PDB
// field's raw 16-byte representation, preserving the canonical on-disk
// byte order rather than the struct's in-memory field order.
func binaryPutGUID(dst *[16]byte, g bytesview.GUID) {
	binary.LittleEndian.PutUint32(dst[0:4], g.Data1)
	binary.LittleEndian.PutUint16(dst[4:6], g.Data2)
	binary.LittleEndian.PutUint16(dst[6:8], g.Data3)
	copy(dst[8:16], g.Data4[:])
}

// pmcSourceBase offsets PMC source ids away from tracemodel.TimerSource so
// a timer sample and a PMC sample never collide in the SampleSource table.
const pmcSourceBase = tracemodel.SampleSourceID(1000)

type sampleKey struct {
	tid uint32
	ts  uint64
}

// kernelBoundary64/32 classify an instruction pointer as kernel-mode by
// its high bit, the convention every Windows kernel-mode address above
// the canonical split uses regardless of pointer width.
const (
	kernelBoundary64 = uint64(1) << 63
	kernelBoundary32 = uint64(1) << 31
)

func isKernelAddress(addr uint64, ptrSize int) bool {
	if ptrSize == 4 {
		return addr >= kernelBoundary32
	}
	return addr >= kernelBoundary64
}

// splitFrames partitions a leaf-first address sequence into its kernel
// and user runs by address, since Windows stack-walk records (unlike
// Linux call-chains) carry no explicit PERF_CONTEXT marker between the
// two.
func splitFrames(addrs []uint64, ptrSize int) (kernel, user []uint64) {
	for _, a := range addrs {
		if isKernelAddress(a, ptrSize) {
			kernel = append(kernel, a)
		} else {
			user = append(user, a)
		}
	}
	return kernel, user
}

func (b *Builder) threadKeyAt(osTID uint32, ts uint64) tracemodel.ThreadKey {
	if t := b.LookupThread(int(osTID), ts); t != nil {
		return t.Key
	}
	return 0
}

// pendingSlot tracks, for one (thread, timestamp) key, the index into
// b.samples of the sample currently queued there awaiting a stack, and
// whether it is the PMC variant (spec §4.6: when a regular and a PMC
// sample coincide, they merge into one record and the PMC variant wins,
// regardless of which one was dispatched first).
type pendingSlot struct {
	idx   int
	isPMC bool
}

// recordTimerSample handles a perfinfo/46 timer sample, queuing it for
// stack attachment by the stack-walk record that follows it. If a PMC
// sample already occupies this (thread, timestamp) slot, the timer
// sample is dropped per the merge rule.
func (b *Builder) recordTimerSample(ev winrecord.SampledProfileEvent, ts uint64) {
	key := sampleKey{tid: ev.ThreadID, ts: ts}
	if slot, ok := b.pendingSamples[key]; ok && slot.isPMC {
		return
	}
	s := tracemodel.Sample{
		Timestamp: ts, IP: ev.InstructionPointer,
		ThreadID: b.threadKeyAt(ev.ThreadID, ts), Source: tracemodel.TimerSource,
	}
	b.AddSample(s, "Timer")
	b.setPendingSlot(key, pendingSlot{idx: len(b.samples) - 1})
}

// recordPMCSample handles a perfinfo/47 PMC overflow sample. If a timer
// sample already occupies this (thread, timestamp) slot, it is
// overwritten in place (preserving its index, and so any stack already
// attached) rather than added alongside it, per the merge rule.
func (b *Builder) recordPMCSample(ev winrecord.PMCCounterProfileEvent, ts uint64) {
	source := pmcSourceBase + tracemodel.SampleSourceID(ev.Source)
	name := b.pmcSourceNames[ev.Source]
	if name == "" {
		name = "PMC"
	}
	key := sampleKey{tid: ev.ThreadID, ts: ts}
	if slot, ok := b.pendingSamples[key]; ok && !slot.isPMC {
		old := b.samples[slot.idx].Source
		b.samples[slot.idx].IP = ev.InstructionPointer
		b.samples[slot.idx].Source = source
		if src, ok := b.sources[old]; ok {
			src.DecSamples()
		}
		if _, ok := b.sources[source]; !ok {
			b.sources[source] = &tracemodel.SampleSource{ID: source, Name: name, HasStacks: true}
		}
		b.sources[source].IncSamples()
		b.setPendingSlot(key, pendingSlot{idx: slot.idx, isPMC: true})
		return
	}
	s := tracemodel.Sample{
		Timestamp: ts, IP: ev.InstructionPointer,
		ThreadID: b.threadKeyAt(ev.ThreadID, ts), Source: source,
	}
	b.AddSample(s, name)
	b.setPendingSlot(key, pendingSlot{idx: len(b.samples) - 1, isPMC: true})
}

func (b *Builder) setPendingSlot(key sampleKey, slot pendingSlot) {
	if b.pendingSamples == nil {
		b.pendingSamples = make(map[sampleKey]pendingSlot)
	}
	b.pendingSamples[key] = slot
}

// namePMCSource records the display name for a PMC source id, applied to
// any sample already queued and any queued later.
func (b *Builder) namePMCSource(source uint32, name string) {
	if b.pmcSourceNames == nil {
		b.pmcSourceNames = make(map[uint32]string)
	}
	b.pmcSourceNames[source] = name
	id := pmcSourceBase + tracemodel.SampleSourceID(source)
	if src, ok := b.sources[id]; ok {
		src.Name = name
	}
}

// recordStackWalk attaches a Windows stack-walk record's frames to every
// sample queued under the same (thread, timestamp) key (spec §4.6).
func (b *Builder) recordStackWalk(ev winrecord.StackWalkEvent) {
	kernel, user := splitFrames(ev.Addresses, b.ptrSize)
	kernelID := b.InternStack(kernel)
	userID := b.InternStack(user)
	key := sampleKey{tid: ev.ThreadID, ts: ev.EventTimestamp}
	if slot, ok := b.pendingSamples[key]; ok {
		b.samples[slot.idx].KernelStack = kernelID
		b.samples[slot.idx].UserStack = userID
	}
	delete(b.pendingSamples, key)
}

// recordStackWalkKey interns a stack-key-addressed stack walk for later
// resolution by whatever sample record correlates on the same key; spec
// §4.6 leaves the correlating record provider-defined, so this only
// makes the frames available by key rather than attaching them eagerly.
func (b *Builder) recordStackWalkKey(ev winrecord.StackWalkKeyEvent) {
	if b.stackByKey == nil {
		b.stackByKey = make(map[uint64]tracemodel.StackID)
	}
	b.stackByKey[ev.StackKey] = b.InternStack(ev.Addresses)
}

// StackByKey returns the StackID interned for a stack-walk-with-key
// record's key, or tracemodel.NoStack if that key was never recorded.
func (b *Builder) StackByKey(key uint64) tracemodel.StackID {
	return b.stackByKey[key]
}

// recordContextSwitch updates per-thread context-switch counters.
func (b *Builder) recordContextSwitch(ev winrecord.ContextSwitchEvent, ts uint64) {
	if t := b.LookupThread(int(ev.NewThreadID), ts); t != nil {
		if t.Stats == nil {
			t.Stats = &tracemodel.ThreadStats{}
		}
		t.Stats.ContextSwitches++
	}
	if t := b.LookupThread(int(ev.OldThreadID), ts); t != nil {
		if t.Stats == nil {
			t.Stats = &tracemodel.ThreadStats{}
		}
		t.Stats.ContextSwitches++
	}
}

// recordPDBInfo attaches PDB identification to whichever module version
// across all processes is mapped at ev.ImageBase and open at ts (the
// record carries no process id of its own).
func (b *Builder) recordPDBInfo(ev winrecord.PDBIDEvent) {
	var guid [16]byte
	binaryPutGUID(&guid, ev.GUID)
	for _, versions := range b.modules {
		for _, m := range versions {
			if m.Base == ev.ImageBase && m.End == nil {
				m.PDB = &tracemodel.PDBInfo{GUID: guid, Age: ev.Age, Name: ev.PDBFileName}
			}
		}
	}
}

// recordLinuxSample converts a perf.data RecordSample into a Sample,
// splitting and interning its call chain immediately since perf.data
// carries the full chain inline rather than in a following record.
func (b *Builder) recordLinuxSample(rec *linuxtrace.RecordSample, source tracemodel.SampleSourceID, sourceName string) {
	s := linuxtrace.ToSample(rec, source)
	s.ThreadID = b.threadKeyAt(uint32(rec.TID), rec.Time)
	kernel, user := linuxtrace.SplitCallchain(rec.Callchain)
	s.KernelStack = b.InternStack(kernel)
	s.UserStack = b.InternStack(user)
	b.AddSample(s, sourceName)
}
