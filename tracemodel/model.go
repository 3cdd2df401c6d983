// Package tracemodel defines the entities shared by both trace readers and
// the context builder: processes, threads, modules, samples, stacks, and
// sample sources (spec §3.1). Both wintrace/linuxtrace decoders and
// tracecontext build on these plain value types; nothing here knows how to
// read bytes off disk.
package tracemodel

// CPUMode classifies whether a sampled address fell in kernel or user
// space, mirroring perffile.CPUMode in the teacher but generalized to
// cover the Windows kernel/user stack split of spec §4.6.
type CPUMode int

const (
	CPUModeUnknown CPUMode = iota
	CPUModeKernel
	CPUModeUser
)

// ProcessKey is a stable internal identifier for one process version that
// distinguishes PID reuse (spec §3.1 Process.key).
type ProcessKey uint64

// Process is one time-versioned incarnation of an OS process id.
type Process struct {
	Key         ProcessKey
	OSPID       int
	Start       uint64 // high-resolution timestamp
	End         *uint64
	ImageName   string
	CommandLine string
	Stats       *ProcessStats
}

// ProcessStats holds optional performance-counter totals for a Process.
// The context builder does not fill it, so Process.Stats stays nil.
type ProcessStats struct {
	ContextSwitches uint64
	PMCTotals       map[int]uint64 // keyed by PMC source id
}

// ThreadKey is a stable internal identifier for one thread version.
type ThreadKey uint64

// Thread is one time-versioned incarnation of an OS thread id.
type Thread struct {
	Key       ThreadKey
	OSTID     int
	ProcessID ProcessKey
	Start     uint64
	End       *uint64
	Name      string
	Stats     *ThreadStats
}

// ThreadStats holds optional per-thread statistics.
type ThreadStats struct {
	ContextSwitches uint64
}

// PDBInfo identifies the PDB symbol file for a Windows module.
type PDBInfo struct {
	GUID [16]byte
	Age  uint32
	Name string
}

// Module is a loaded image mapped into [Base, Base+Size) for one process.
type Module struct {
	ProcessID ProcessKey
	Base      uint64
	Size      uint64
	Start     uint64
	End       *uint64

	// Filename is the normalized display path (spec §4.6 path
	// normalization); RawFilename is the as-recorded NT/device path.
	Filename    string
	RawFilename string
	Checksum    uint32

	PDB     *PDBInfo // Windows
	BuildID []byte   // Linux
	PageOff uint64   // Linux
}

// SampleSourceID identifies a named axis of samples.
type SampleSourceID int

// TimerSource is the reserved id for the default "Timer" sample source.
const TimerSource SampleSourceID = 0

// SampleSource describes one axis of samples such as the Windows "Timer"
// profile or a named Linux perf event.
type SampleSource struct {
	ID        SampleSourceID
	Name      string
	AvgRate   float64
	HasStacks bool

	numSamples int
}

// IncSamples records one more sample attributed to this source.
func (s *SampleSource) IncSamples() { s.numSamples++ }

// DecSamples un-attributes one sample from this source (used when a
// sample merges into another source after the fact).
func (s *SampleSource) DecSamples() { s.numSamples-- }

// NumSamples returns the number of samples attributed to this source.
func (s *SampleSource) NumSamples() int { return s.numSamples }

// StackID is a content-addressed identifier for an interned call stack; two
// samples with identical frame sequences share a StackID (spec §3.1 Stack).
type StackID uint64

// NoStack is the zero value meaning "no stack recorded".
const NoStack StackID = 0

// SystemInfo is the host metadata captured alongside a trace: hostname,
// processor architecture and model, and OS name/version (spec §4.6).
type SystemInfo struct {
	Hostname          string
	ProcessorArch     string
	ProcessorModel    string
	NumberOfProcessors int
	OSName            string
	OSVersion         string
}

// Sample is one recorded event attributing time to an instruction address,
// optionally with associated user/kernel call stacks.
type Sample struct {
	Timestamp   uint64
	ThreadID    ThreadKey
	IP          uint64
	UserStack   StackID
	KernelStack StackID
	Source      SampleSourceID
}
