package tracecontext

import (
	"sort"

	"github.com/gopherprof/tracecore/linuxtrace"
	"github.com/gopherprof/tracecore/tracemodel"
	"github.com/gopherprof/tracecore/winrecord"
)

// ProcessesWithSamples enumerates every Process version that has at
// least one attributed sample, in OSPID order then start-time order
// (spec §4.6 query 1).
func (b *Builder) ProcessesWithSamples() []*tracemodel.Process {
	hasSample := make(map[tracemodel.ProcessKey]bool)
	for _, s := range b.samples {
		t := b.threadByKey(s.ThreadID)
		if t != nil {
			hasSample[t.ProcessID] = true
		}
	}
	var out []*tracemodel.Process
	pids := make([]int, 0, len(b.processes))
	for pid := range b.processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		for _, p := range b.processes[pid] {
			if hasSample[p.Key] {
				out = append(out, p)
			}
		}
	}
	return out
}

// ThreadProcess returns the ProcessKey owning thread, or 0 if thread is
// unknown.
func (b *Builder) ThreadProcess(thread tracemodel.ThreadKey) tracemodel.ProcessKey {
	if t := b.threadByKey(thread); t != nil {
		return t.ProcessID
	}
	return 0
}

func (b *Builder) threadByKey(key tracemodel.ThreadKey) *tracemodel.Thread {
	for _, versions := range b.threads {
		for _, t := range versions {
			if t.Key == key {
				return t
			}
		}
	}
	return nil
}

// ThreadsOf enumerates every Thread version belonging to process, with
// their accumulated statistics (spec §4.6 query 2).
func (b *Builder) ThreadsOf(process tracemodel.ProcessKey) []*tracemodel.Thread {
	var out []*tracemodel.Thread
	tids := make([]int, 0, len(b.threads))
	for tid := range b.threads {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	for _, tid := range tids {
		for _, t := range b.threads[tid] {
			if t.ProcessID == process {
				out = append(out, t)
			}
		}
	}
	return out
}

// SamplesFor returns every sample for thread attributed to source within
// [start, end], in timestamp order (spec §4.6 query 3). Samples are
// already appended in dispatch time order, so a single filtering pass
// preserves ordering without re-sorting.
func (b *Builder) SamplesFor(thread tracemodel.ThreadKey, start, end uint64, source tracemodel.SampleSourceID) []tracemodel.Sample {
	var out []tracemodel.Sample
	for _, s := range b.samples {
		if s.ThreadID != thread || s.Source != source {
			continue
		}
		if s.Timestamp < start || s.Timestamp > end {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SystemInfo returns the host metadata assembled so far.
func (b *Builder) SystemInfo() tracemodel.SystemInfo {
	return b.sysInfo
}

// ApplyLinuxMeta populates system info from a perf.data file's metadata
// section (spec §4.6's "equivalent Linux metadata").
func (b *Builder) ApplyLinuxMeta(meta linuxtrace.FileMeta) {
	b.sysInfo.Hostname = meta.Hostname
	b.sysInfo.ProcessorArch = meta.Arch
	b.sysInfo.ProcessorModel = meta.CPUDesc
	b.sysInfo.NumberOfProcessors = meta.CPUsAvail
	b.sysInfo.OSName = "Linux"
	b.sysInfo.OSVersion = meta.OSRelease
	// perf.data sample timestamps are nanoseconds since boot; there is no
	// separate frequency field to read, unlike the Windows header's
	// PerfFreq.
	b.timerFrequency = 1e9
}

// ApplyWindowsHeader populates system info from the container's header/0
// record, the only classic record that carries processor count; hostname
// and CPU model come from the system-config/pnp records this reader does
// not decode (no original_source coverage for those shapes — see
// DESIGN.md), so those fields are left blank on Windows traces.
func (b *Builder) ApplyWindowsHeader(ev winrecord.EventTraceHeaderEvent) {
	b.sysInfo.NumberOfProcessors = int(ev.NumberOfProcessors)
	b.sysInfo.OSName = "Windows"
	b.timerFrequency = float64(ev.PerfFreq)
}
