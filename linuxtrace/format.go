// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"fmt"
	"io"
	"strings"
)

/*gendefs:C
#include <include/uapi/linux/perf_event.h>
*/

//go:generate -command bitstringer ../cmd/bitstringer/bitstringer

const numFeatureBits = 256

// fileHeader is the fixed-size on-disk prefix of a perf.data file:
// magic, the size of this header, and the three file-relative
// sections (event attrs, the record stream, and a legacy event-types
// section that v2 files leave unused), followed by a bitmap of which
// optional metadata features follow the record stream.
type fileHeader struct {
	Magic    [8]byte
	Size     uint64
	AttrSize uint64
	Attrs    fileSection
	Data     fileSection
	_        fileSection

	Features [numFeatureBits / 64]uint64
}

func (h *fileHeader) hasFeature(f feature) bool {
	return h.Features[f/64]&(1<<(uint(f)%64)) != 0
}

// fileSection is an offset/length pair locating one region of a
// perf.data file.
type fileSection struct {
	Offset, Size uint64
}

func (s fileSection) sectionReader(r io.ReaderAt) *io.SectionReader {
	return io.NewSectionReader(r, int64(s.Offset), int64(s.Size))
}

func (s fileSection) data(r io.ReaderAt) ([]byte, error) {
	out := make([]byte, s.Size)
	n, err := r.ReadAt(out, int64(s.Offset))
	if n == len(out) {
		return out, nil
	}
	return nil, err
}

// feature is one bit position in fileHeader.Features: which optional
// metadata section, if any, is present at that position in the
// feature section list.
type feature int

// TODO: gendefs HEADER_* feature -omit HEADER_FIRST_FEATURE -omit HEADER_FEAT_BITS
// Tricky because tools/perf/util/header.h pulls in all sorts of other junk.

const (
	featureReserved feature = iota // always cleared
	featureTracingData
	featureBuildID

	featureHostname
	featureOSRelease
	featureVersion
	featureArch
	featureNrCpus
	featureCPUDesc
	featureCPUID
	featureTotalMem
	featureCmdline
	featureEventDesc
	featureCPUTopology
	featureNUMATopology
	featureBranchStack
	featurePMUMappings
	featureGroupDesc
)

// fileAttr is one entry of the file's event attr table: the
// normalized attribute plus the section listing which attr IDs
// (per-core or per-thread) use it.
type fileAttr struct {
	Attr EventAttr
	IDs  fileSection
}

// eventAttrV0 is the ABI v0 layout of perf_event_attr: the prefix
// every later version still begins with.
type eventAttrV0 struct {
	Type                    EventType
	Size                    uint32
	Config                  uint64
	SamplePeriodOrFreq      uint64
	SampleFormat            SampleFormat
	ReadFormat              ReadFormat
	Flags                   EventFlags
	WakeupEventsOrWatermark uint32
	BPType                  uint32
	// BPAddrOrConfig1 can also hold kprobe_func or uprobe_path, but
	// those are string pointers meaningful only to the live
	// perf_event_open API, not to a recorded file.
	BPAddrOrConfig1 uint64
}

// eventAttrVN is the newest ABI layout this reader understands
// (currently v7), with each version's additions grouped below.
type eventAttrVN struct {
	eventAttrV0

	// v1
	//
	// BPLenOrConfig2 can also hold kprobe_addr or probe_offset, used
	// alongside kprobe_func/uprobe_path above.
	BPLenOrConfig2 uint64

	// v2
	BranchSampleType BranchSampleType

	// v3
	SampleRegsUser  uint64
	SampleStackUser uint32
	ClockID         int32

	// v4
	SampleRegsIntr uint64

	// v5
	AuxWatermark   uint32
	SampleMaxStack uint16 // cap on callchain depth; see perf_event_max_stack
	Pad            uint16

	// v6
	AuxSampleSize uint32 // aux bytes to include when SampleFormatAux is set
	Pad2          uint32

	// v7
	SigData uint64 // delivered to the process via sigcontext on SIGTRAP
}

// attrID is the per-core/per-thread identifier perf assigns an event,
// distinct from the event's own EventType/EventID pair.
type attrID uint64

// Event describes one specific thing being measured: a hardware
// counter, a kernel software counter, a tracepoint, a breakpoint, and
// so on. Every event happens at an instant and can be counted or
// sampled.
type Event interface {
	// Generic returns this event in its type-erased form.
	Generic() EventGeneric
}

// EventType is the broad class an Event belongs to, corresponding to
// the perf_type_id enum.
type EventType uint32

//gendefs perf_type_id.PERF_TYPE_* EventType -omit-max
//go:generate stringer -type=EventType

const (
	EventTypeHardware EventType = iota
	EventTypeSoftware
	EventTypeTracepoint
	EventTypeHWCache
	EventTypeRaw
	EventTypeBreakpoint
)

// EventID, paired with an EventType, names one specific event.
type EventID uint64

// EventAttr is the normalized form of perf_event_attr: what event is
// being recorded and how.
type EventAttr struct {
	// Event is what's being counted or sampled.
	Event Event

	// SamplePeriod, when nonzero, is the approximate number of
	// events between samples. Set only when Flags&EventFlagFreq == 0;
	// see also SampleFreq.
	SamplePeriod uint64

	// SampleFreq, when nonzero, is the target sample rate per
	// second per core. The kernel approximates this by adjusting
	// the sampling period on the fly (perf_calculate_period), so
	// it's not precise, particularly for irregular events. If
	// SampleFormat includes SampleFormatPeriod, each sample reports
	// the actual event count since the last sample on that CPU. Set
	// only when Flags&EventFlagFreq != 0; see also SamplePeriod.
	SampleFreq uint64

	// SampleFormat is the bitmask describing which fields of
	// RecordSample are populated.
	SampleFormat SampleFormat

	// ReadFormat is the bitmask describing which fields of
	// SampleRead are populated.
	ReadFormat ReadFormat

	Flags EventFlags

	// Precise is the instruction-pointer precision this event was
	// recorded with.
	Precise EventPrecision

	// WakeupEvents and WakeupWatermark give the wakeup threshold;
	// exactly one is nonzero, selected by Flags&EventFlagWakeupWatermark.
	WakeupEvents    uint32
	WakeupWatermark uint32

	// BranchSampleType selects which kinds of branches (and which
	// details about them) are recorded in the branch stack when
	// SampleFormat&SampleFormatBranchStack is set.
	BranchSampleType BranchSampleType

	// SampleRegsUser is a bitmask of user-space registers captured
	// in RecordSample.RegsUser; which hardware register each bit
	// names depends on the register ABI.
	SampleRegsUser uint64

	// SampleStackUser is the number of bytes of user stack dumped
	// per sample.
	SampleStackUser uint32

	// SampleRegsIntr is a bitmask of registers captured in
	// RecordSample.RegsIntr. If Precise ==
	// EventPrecisionArbitrarySkid these are captured at the PMU
	// interrupt; otherwise they're captured by hardware at the
	// sampled instruction.
	SampleRegsIntr uint64

	// AuxWatermark is the AUX-area fill threshold, in bytes, at
	// which user space is woken to drain it.
	AuxWatermark uint32

	// SampleMaxStack caps the number of frames recorded in a
	// callchain; should stay below /proc/sys/kernel/perf_event_max_stack.
	SampleMaxStack uint16
}

// SampleFormat is a bitmask selecting which fields a sample record
// carries, corresponding to the perf_event_sample_format enum.
type SampleFormat uint64

//gendefs perf_event_sample_format.PERF_SAMPLE_* SampleFormat -omit-max
//go:generate bitstringer -type=SampleFormat -strip=SampleFormat

const (
	SampleFormatIP SampleFormat = 1 << iota
	SampleFormatTID
	SampleFormatTime
	SampleFormatAddr
	SampleFormatRead
	SampleFormatCallchain
	SampleFormatID
	SampleFormatCPU
	SampleFormatPeriod
	SampleFormatStreamID
	SampleFormatRaw
	SampleFormatBranchStack
	SampleFormatRegsUser
	SampleFormatStackUser
	SampleFormatWeight
	SampleFormatDataSrc
	SampleFormatIdentifier
	SampleFormatTransaction
	SampleFormatRegsIntr
	SampleFormatPhysAddr
	SampleFormatAux
	SampleFormatCGroup
	SampleFormatDataPageSize
	SampleFormatCodePageSize
	SampleFormatWeightStruct
)

// sampleIDOffset returns the byte offset of the attr-ID field within
// an on-disk sample record with this format, or -1 if samples of this
// format carry no ID.
func (s SampleFormat) sampleIDOffset() int {
	if s&SampleFormatIdentifier != 0 {
		return 0
	}
	if s&SampleFormatID == 0 {
		return -1
	}

	off := 0
	if s&SampleFormatIP != 0 {
		off += 8
	}
	if s&SampleFormatTID != 0 {
		off += 8
	}
	if s&SampleFormatTime != 0 {
		off += 8
	}
	if s&SampleFormatAddr != 0 {
		off += 8
	}
	return off
}

// recordIDOffset returns the byte offset, measured backward from the
// end of a non-sample record's sample_id trailer, of its attr-ID
// field, or -1 if this format has no such trailer ID.
func (s SampleFormat) recordIDOffset() int {
	if s&SampleFormatIdentifier != 0 {
		return -8
	}
	if s&SampleFormatID == 0 {
		return -1
	}

	off := 0
	if s&SampleFormatCPU != 0 {
		off -= 8
	}
	if s&SampleFormatStreamID != 0 {
		off -= 8
	}
	return off - 8
}

// trailerBytes returns the length in bytes of the sample_id trailer
// appended to non-sample records under this format.
func (s SampleFormat) trailerBytes() int {
	s &= SampleFormatTID | SampleFormatTime | SampleFormatID | SampleFormatStreamID | SampleFormatCPU | SampleFormatIdentifier
	return 8 * weight(uint64(s))
}

// ReadFormat is a bitmask selecting which fields SampleRead carries,
// corresponding to the perf_event_read_format enum.
type ReadFormat uint64

//gendefs perf_event_read_format.PERF_FORMAT_* ReadFormat -omit-max
//go:generate bitstringer -type=ReadFormat -strip=ReadFormat

const (
	ReadFormatTotalTimeEnabled ReadFormat = 1 << iota
	ReadFormatTotalTimeRunning
	ReadFormatID
	ReadFormatGroup
)

// EventFlags is a bitmask of an event's boolean recording options,
// corresponding to the perf_event_attr flag bits.
type EventFlags uint64

// TODO: gendefs (need to understand skip in the middle)
//go:generate bitstringer -type=EventFlags -strip=EventFlag

const (
	EventFlagDisabled EventFlags = 1 << iota
	EventFlagInherit
	EventFlagPinned
	EventFlagExclusive
	EventFlagExcludeUser
	EventFlagExcludeKernel
	EventFlagExcludeHypervisor
	EventFlagExcludeIdle
	EventFlagMmap
	EventFlagComm
	EventFlagFreq
	EventFlagInheritStat
	EventFlagEnableOnExec
	EventFlagTask
	EventFlagWakeupWatermark

	// Two bits reserved here for EventFlagPreciseIPMask.

	EventFlagMmapData EventFlags = 1 << (2 + iota)
	EventFlagSampleIDAll
	EventFlagExcludeHost
	EventFlagExcludeGuest
	EventFlagExcludeCallchainKernel
	EventFlagExcludeCallchainUser
	EventFlagMmapInodeData
	EventFlagCommExec
	EventFlagClockID
	EventFlagContextSwitch
	EventFlagWriteBackward
	EventFlagNamespaces
	EventFlagKsymbol
	EventFlagAuxOutput
	EventFlagCGroup
	EventFlagTextPoke
	EventFlagBuildID
	EventFlagInheritThread
	EventFlagRemoveOnExec
	EventFlagSigtrap

	eventFlagPreciseShift = 15
	eventFlagPreciseMask  = 0x3 << eventFlagPreciseShift
)

// EventPrecision describes how exactly an event's recorded
// instruction pointers correspond to the instruction that triggered
// it; the achievable precision depends on the capture mechanism.
type EventPrecision int

//go:generate stringer -type=EventPrecision

const (
	EventPrecisionArbitrarySkid EventPrecision = iota
	EventPrecisionConstantSkid
	EventPrecisionTryZeroSkid
	EventPrecisionZeroSkip
)

// BranchSampleType is a bitmask selecting which branches (and which
// details about them) go into a sample's branch stack, corresponding
// to the perf_branch_sample_type enum.
//
// Some bits select privilege levels to record, which may differ from
// the privilege levels of the event itself; if none of those bits are
// set, the event's own privilege levels apply.
type BranchSampleType uint64

//gendefs perf_branch_sample_type.PERF_SAMPLE_BRANCH_* BranchSample BranchSampleType -omit-max
//go:generate bitstringer -type=BranchSampleType -strip=BranchSample

const (
	BranchSampleUser   BranchSampleType = 1 << iota
	BranchSampleKernel
	BranchSampleHV

	BranchSampleAny
	BranchSampleAnyCall
	BranchSampleAnyReturn
	BranchSampleIndCall
	BranchSampleAbortTX
	BranchSampleInTX
	BranchSampleNoTX
	BranchSampleCond

	BranchSampleCallStack
	BranchSampleIndJump
	BranchSampleCall

	BranchSampleNoFlags
	BranchSampleNoCycles
	BranchSampleTypeSave
	BranchSampleHWIndex
)

// recordHeader is the fixed 8-byte prefix of every on-disk record:
// its type, a type-specific misc bitmask, and its total size
// including this header.
type recordHeader struct {
	Type RecordType
	Misc recordMisc
	Size uint16
}

// RecordType is the kind of a record in the record stream: either a
// profiling sample, or a notification that some piece of system state
// changed (a process mapped memory, exited, and so on).
type RecordType uint32

// TODO gendefs (mix of exported and unexported)
//go:generate stringer -type=RecordType

const (
	RecordTypeMmap RecordType = 1 + iota
	RecordTypeLost
	RecordTypeComm
	RecordTypeExit
	RecordTypeThrottle
	RecordTypeUnthrottle
	RecordTypeFork
	RecordTypeRead
	RecordTypeSample
	recordTypeMmap2 // extended RecordTypeMmap with inode/build-id info
	RecordTypeAux
	RecordTypeItraceStart
	RecordTypeLostSamples
	RecordTypeSwitch
	RecordTypeSwitchCPUWide
	RecordTypeNamespaces
	RecordTypeKsymbol
	RecordTypeBPFEvent
	RecordTypeCGroup
	RecordTypeTextPoke
	RecordTypeAuxOutputHardwareID

	recordTypeUserStart RecordType = 64
)

// Record types at or above recordTypeUserStart are internal to perf's
// own pipe/file protocol; most never reach a decoded Record value.
const (
	recordTypeAttr      RecordType = recordTypeUserStart + iota
	recordTypeEventType            // deprecated
	recordTypeTracingData
	recordTypeBuildID
	recordTypeFinishedRound
	recordTypeIDIndex
	RecordTypeAuxtraceInfo
	RecordTypeAuxtrace
	RecordTypeAuxtraceError
	recordTypeThreadMap
	recordTypeCPUMap
	recordTypeStatConfig
	recordTypeStat
	recordTypeStatRound
	recordTypeEventUpdate
	recordTypeTimeConv
	recordTypeHeaderFeature
)

// recordMisc is the type-specific bitmask carried in recordHeader.Misc;
// its meaning depends on the record's Type.
type recordMisc uint16

// TODO gendefs PERF_RECORD_MISC_* recordMisc -omit PERF_RECORD_MISC_CPUMODE_UNKNOWN -omit PERF_RECORD_MISC_KERNEL -omit PERF_RECORD_MISC_USER -omit PERF_RECORD_MISC_HYPERVISOR -omit PERF_RECORD_MISC_GUEST_KERNEL -omit PERF_RECORD_MISC_GUEST_USER

const (
	recordMiscCPUModeMask         recordMisc = 7
	recordMiscProcMapParseTimeout            = 1 << 12
	recordMiscMmapData                       = 1 << 13 // RecordMmap variants
	recordMiscCommExec                       = 1 << 13 // RecordComm
	recordMiscForkExec                       = 1 << 13 // RecordFork, perf-internal
	recordMiscSwitchOut                      = 1 << 13 // RecordSwitch variants

	// recordMiscExactIP, on RecordSample, marks that the sample IP
	// is exactly the instruction that triggered the event.
	recordMiscExactIP = 1 << 14

	// recordMiscSwitchOutPreempt, on RecordSwitch variants, marks an
	// involuntary preemption (the thread was TASK_RUNNING).
	recordMiscSwitchOutPreempt = 1 << 14

	// recordMiscMmapBuildID, on recordTypeMmap2, marks that the
	// record carries build-ID data rather than inode data.
	recordMiscMmapBuildID = 1 << 14
)

// Record is implemented by every decoded record type.
type Record interface {
	Type() RecordType
	Common() *RecordCommon
}

// RecordCommon holds the fields shared by every record type. It is
// not itself a Record.
//
// Most fields are optional; Format says which are valid for this
// particular record. Some record types guarantee specific fields
// regardless of Format — see each type's doc comment.
type RecordCommon struct {
	// Offset is this record's byte offset within the perf.data file.
	Offset int64

	// Format is the SampleFormat bitmask naming which optional
	// fields below are populated.
	Format SampleFormat

	// EventAttr is the event this record is associated with, if any.
	EventAttr *EventAttr

	PID, TID int
	Time     uint64
	ID       attrID
	StreamID uint64
	CPU, Res uint32
}

func (r *RecordCommon) Common() *RecordCommon {
	return r
}

// RecordUnknown wraps a record whose type this reader doesn't decode,
// preserving its raw body.
type RecordUnknown struct {
	recordHeader

	RecordCommon

	Data []byte
}

func (r *RecordUnknown) Type() RecordType {
	return RecordType(r.recordHeader.Type)
}

// RecordMmap records a call to mmap by a profiled process, or an
// existing mapping described at the start of a profile.
type RecordMmap struct {
	// PID and TID are always populated.
	RecordCommon

	Data bool // from header misc

	// Addr and Len are the mapping's start address and length.
	Addr, Len uint64
	// FileOffset is the byte offset into the mapped file where this
	// mapping begins.
	FileOffset uint64

	Major, Minor       uint32 // mmap2 records without a build ID
	Ino, InoGeneration uint64 // mmap2 records without a build ID

	BuildID []byte // mmap2 records carrying a build ID (header misc bit 14)

	Prot, Flags uint32
	Filename    string
}

func (r *RecordMmap) Type() RecordType {
	return RecordTypeMmap
}

// RecordLost records that a buffer overflow dropped profiling events.
type RecordLost struct {
	// ID and EventAttr are always populated.
	RecordCommon

	NumLost uint64
}

func (r *RecordLost) Type() RecordType {
	return RecordTypeLost
}

// RecordComm records an exec by a profiled process, or an existing
// process described at the start of a profile.
type RecordComm struct {
	// PID and TID are always populated.
	RecordCommon

	Exec bool // from header misc

	Comm string
}

func (r *RecordComm) Type() RecordType {
	return RecordTypeComm
}

// RecordExit records that a process or thread exited.
type RecordExit struct {
	// PID, TID, and Time are always populated.
	RecordCommon

	PPID, PTID int
}

func (r *RecordExit) Type() RecordType {
	return RecordTypeExit
}

// RecordThrottle records that interrupt throttling turned on or off.
type RecordThrottle struct {
	// Time, ID, StreamID, and EventAttr are always populated.
	RecordCommon

	Enable bool
}

func (r *RecordThrottle) Type() RecordType {
	return RecordTypeThrottle
}

// RecordFork records a clone() call that forked a process or created
// a thread.
type RecordFork struct {
	// PID, TID, and Time are always populated.
	RecordCommon

	PPID, PTID int
}

func (r *RecordFork) Type() RecordType {
	return RecordTypeFork
}

// RecordAux records that data was appended to the AUX ring buffer.
type RecordAux struct {
	RecordCommon

	Offset, Size uint64
	Flags        AuxFlags
	PMUFormat    AuxPMUFormat
}

func (r *RecordAux) Type() RecordType {
	return RecordTypeAux
}

// AuxFlags is a bitmask of properties of a RecordAux event.
type AuxFlags uint64

//TODO gendefs PERF_AUX_FLAG_* AuxFlag AuxFlags (macros)
//go:generate bitstringer -type=AuxFlags -strip=AuxFlag

const (
	AuxFlagTruncated AuxFlags = 1 << iota
	AuxFlagOverwrite
	AuxFlagPartial
	AuxFlagCollision
)

// AuxPMUFormat is the architecture-specific trace format of AUX data.
type AuxPMUFormat uint8

//go:generate stringer -type=AuxPMUFormat

const (
	AuxPMUFormatCoresightCoresight AuxPMUFormat = 0 // ARM Coresight CORESIGHT format
	AuxPMUFormatCoresightRaw       AuxPMUFormat = 1 // ARM Coresight RAW format

	AuxPMUFormatDefault AuxPMUFormat = 0
)

// RecordItraceStart marks the start of an instruction trace.
type RecordItraceStart struct {
	// PID and TID are always populated.
	RecordCommon
}

func (r *RecordItraceStart) Type() RecordType {
	return RecordTypeItraceStart
}

// RecordLostSamples counts samples dropped by the kernel.
type RecordLostSamples struct {
	RecordCommon

	Lost uint64
}

func (r *RecordLostSamples) Type() RecordType {
	return RecordTypeLostSamples
}

// RecordSwitch records a context switch into or out of a monitored
// process. See also RecordSwitchCPUWide.
type RecordSwitch struct {
	RecordCommon

	// Out is true for a switch-out, false for a switch-in.
	Out bool
}

func (r *RecordSwitch) Type() RecordType {
	return RecordTypeSwitch
}

// RecordSwitchCPUWide is the CPU-wide counterpart of RecordSwitch.
type RecordSwitchCPUWide struct {
	RecordCommon

	Out bool

	// Preempt is true when the preempted thread was TASK_RUNNING —
	// an involuntary preemption.
	Preempt bool

	// SwitchPID and SwitchTID identify the process being switched
	// in or out.
	SwitchPID, SwitchTID int
}

func (r *RecordSwitchCPUWide) Type() RecordType {
	return RecordTypeSwitchCPUWide
}

// RecordNamespaces records the set of namespaces a process belongs to.
type RecordNamespaces struct {
	// PID and TID are always populated.
	RecordCommon

	Namespaces []Namespace
}

func (r *RecordNamespaces) Type() RecordType {
	return RecordTypeNamespaces
}

// Namespace identifies a single Linux namespace by device and inode.
type Namespace struct {
	Dev, Inode uint64
}

// RecordKsymbol records the registration or unregistration of a
// dynamically-loaded or JIT-compiled kernel symbol.
type RecordKsymbol struct {
	RecordCommon

	Addr     uint64
	Len      uint32
	KsymType KsymbolType
	Flags    KsymbolFlags
	Name     string
}

func (r *RecordKsymbol) Type() RecordType {
	return RecordTypeKsymbol
}

// KsymbolType classifies a RecordKsymbol entry.
type KsymbolType uint16

//gendefs perf_record_ksymbol_type.PERF_RECORD_KSYMBOL_TYPE_* KsymbolType -omit-max
//go:generate bitstringer -type=KsymbolType -strip=KsymbolType

const (
	KsymbolTypeUnknown KsymbolType = iota
	KsymbolTypeBpf
	KsymbolTypeOol
)

// KsymbolFlags is a bitmask of properties of a RecordKsymbol event.
type KsymbolFlags uint64

// TODO gendefs PERF_RECORD_KSYMBOL_FLAGS_* KsymbolFlag KsymbolFlags (macros)
//go:generate bitstringer -type=KsymbolFlags -strip=KsymbolFlag

const (
	KsymbolFlagUnregister KsymbolFlags = iota
)

// RecordBPFEvent records a BPF program load or unload.
type RecordBPFEvent struct {
	RecordCommon

	EventType BPFEventType
	Flags     BPFEventFlags
	ID        uint32
	Tag       uint64
}

func (r *RecordBPFEvent) Type() RecordType {
	return RecordTypeBPFEvent
}

// BPFEventType distinguishes BPF program load from unload.
type BPFEventType uint16

// gendefs perf_bpf_event_type.PERF_BPF_EVENT_* BPFEventType -omit-max
//go:generate bitstringer -type=BPFEventType -strip=BPFEventType

const (
	BPFEventTypeUnknown BPFEventType = iota
	BPFEventTypeProgLoad
	BPFEventTypeProgUnload
)

// BPFEventFlags is reserved for future RecordBPFEvent flags; none are
// defined by the kernel yet.
type BPFEventFlags uint16

// RecordCGroup records the association between a cgroup ID and its
// path.
type RecordCGroup struct {
	RecordCommon

	ID   uint32
	Path string
}

func (r *RecordCGroup) Type() RecordType {
	return RecordTypeCGroup
}

// RecordTextPoke records a single-instruction patch to kernel text,
// including the old and new bytes.
type RecordTextPoke struct {
	RecordCommon

	Addr uint64
	Old  []byte
	New  []byte
}

func (r *RecordTextPoke) Type() RecordType {
	return RecordTypeTextPoke
}

// RecordAuxOutputHardwareID records an architecture-specific hardware
// ID associated with the AUX data for an event, e.g. to disambiguate
// PEBS event types when sampling via Intel PT.
type RecordAuxOutputHardwareID struct {
	RecordCommon

	ID uint64
}

func (r *RecordAuxOutputHardwareID) Type() RecordType {
	return RecordTypeAuxOutputHardwareID
}

// RecordAuxtraceInfo describes the format of subsequent RecordAuxtrace
// data for this trace.
type RecordAuxtraceInfo struct {
	RecordCommon

	Kind uint32

	Priv []uint64
}

func (r *RecordAuxtraceInfo) Type() RecordType {
	return RecordTypeAuxtraceInfo
}

// RecordAuxtrace carries a chunk of raw hardware trace data (e.g.
// Intel PT), whose encoding is defined by the preceding
// RecordAuxtraceInfo.
type RecordAuxtrace struct {
	// TID and CPU are always populated.
	RecordCommon

	// Offset is the byte offset within the AUX mmap region; not
	// meaningful once recorded to a file.
	Offset uint64

	// Ref uniquely identifies this auxtrace block.
	Ref uint64

	// Idx is the index of the AUX mmap region this data came from;
	// not meaningful once recorded to a file.
	Idx uint32

	Data []byte
}

func (r *RecordAuxtrace) Type() RecordType {
	return RecordTypeAuxtrace
}

// RecordSample is a single profiling sample. Which fields are valid
// is determined by RecordCommon.Format (== EventAttr.SampleFormat).
type RecordSample struct {
	// EventAttr is always populated; Format describes which of the
	// fields below (and which common fields) are valid.
	RecordCommon

	CPUMode CPUMode // from header misc
	ExactIP bool    // from header misc

	IP   uint64 // if SampleFormatIP
	Addr uint64 // if SampleFormatAddr

	// Period is the event count on this CPU since the previous
	// sample. Under frequency sampling this varies dynamically;
	// under fixed-period sampling it's constant.
	Period uint64 // if SampleFormatPeriod

	// SampleRead holds the raw counter value(s) for this event.
	// Event groups produce more than one element; otherwise exactly
	// one.
	SampleRead []Count // if SampleFormatRead

	// Callchain is the call stack of the sampled instruction,
	// innermost frame first. It may span multiple stack types (e.g.
	// kernel then user); a Callchain* marker precedes the first IP
	// of each stack segment.
	Callchain []uint64 // if SampleFormatCallchain

	// BranchHWIndex is the raw hardware branch-record index (e.g.
	// LBR) corresponding to BranchStack[0] — useful for stitching
	// stacks across samples. Ranges from -1 (unknown) to the
	// hardware's max branch depth.
	BranchHWIndex int64 // if BranchSampleHWIndex

	BranchStack []BranchRecord // if SampleFormatBranchStack

	// RegsUserABI and RegsUser record the user-space register file
	// as of this sample, even if the sample itself landed in the
	// kernel. RegsUser[i] is the register named by the i-th set bit
	// of EventAttr.SampleRegsUser.
	RegsUserABI SampleRegsABI // if SampleFormatRegsUser
	RegsUser    []uint64      // if SampleFormatRegsUser

	// RegsIntrABI and RegsIntr are like RegsUser/RegsUserABI but may
	// reflect kernel-space registers if the sample landed in the
	// kernel. RegsIntr[i] is named by the i-th set bit of
	// EventAttr.SampleRegsIntr.
	RegsIntrABI SampleRegsABI // if SampleFormatRegsIntr
	RegsIntr    []uint64      // if SampleFormatRegsIntr

	StackUser        []byte // if SampleFormatStackUser
	StackUserDynSize uint64 // if SampleFormatStackUser

	Weight  uint64  // if SampleFormatWeight or SampleFormatWeightStruct
	Weights Weights // if SampleFormatWeightStruct

	DataSrc DataSrc // if SampleFormatDataSrc

	Transaction Transaction // if SampleFormatTransaction
	AbortCode   uint32      // if SampleFormatTransaction

	PhysAddr uint64 // if SampleFormatPhysAddr

	CGroup uint64 // if SampleFormatCGroup

	DataPageSize uint64 // if SampleFormatDataPageSize
	CodePageSize uint64 // if SampleFormatCodePageSize

	Aux []byte // if SampleFormatAux

	Raw []byte // if SampleFormatRaw
}

func (r *RecordSample) Type() RecordType {
	return RecordTypeSample
}

// sampleField describes one optional field group of RecordSample: the
// SampleFormat bit(s) that gate its presence, the field name(s) it
// contributes to Fields, and how to render it for String.
type sampleField struct {
	bit    SampleFormat
	names  []string
	format func(r *RecordSample) string
}

// sampleFields lists every optional RecordSample field group in
// declaration order. String and Fields both walk this table instead
// of duplicating the same if-ladder, so a field added to RecordSample
// only needs one new entry here.
var sampleFields = []sampleField{
	{SampleFormatID | SampleFormatIdentifier, []string{"ID"}, func(r *RecordSample) string {
		return fmt.Sprintf(" ID:%d", r.ID)
	}},
	{SampleFormatIP, []string{"IP"}, func(r *RecordSample) string {
		return fmt.Sprintf(" IP:%#x", r.IP)
	}},
	{SampleFormatTID, []string{"PID", "TID"}, func(r *RecordSample) string {
		return fmt.Sprintf(" PID:%d TID:%d", r.PID, r.TID)
	}},
	{SampleFormatTime, []string{"Time"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Time:%d", r.Time)
	}},
	{SampleFormatAddr, []string{"Addr"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Addr:%#x", r.Addr)
	}},
	{SampleFormatStreamID, []string{"StreamID"}, func(r *RecordSample) string {
		return fmt.Sprintf(" StreamID:%d", r.StreamID)
	}},
	{SampleFormatCPU, []string{"CPU", "Res"}, func(r *RecordSample) string {
		return fmt.Sprintf(" CPU:%d Res:%d", r.CPU, r.Res)
	}},
	{SampleFormatPeriod, []string{"Period"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Period:%d", r.Period)
	}},
	{SampleFormatRead, []string{"SampleRead"}, func(r *RecordSample) string {
		return fmt.Sprintf(" SampleRead:%v", r.SampleRead)
	}},
	{SampleFormatCallchain, []string{"Callchain"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Callchain:%#x", r.Callchain)
	}},
	{SampleFormatBranchStack, []string{"BranchStack"}, func(r *RecordSample) string {
		return fmt.Sprintf(" BranchStack:%v", r.BranchStack)
	}},
	{SampleFormatRegsUser, []string{"RegsUserABI", "RegsUser"}, func(r *RecordSample) string {
		return fmt.Sprintf(" RegsUserABI:%v RegsUser:%v", r.RegsUserABI, r.RegsUser)
	}},
	{SampleFormatRegsIntr, []string{"RegsIntrABI", "RegsIntr"}, func(r *RecordSample) string {
		return fmt.Sprintf(" RegsIntrABI:%v RegsIntr:%v", r.RegsIntrABI, r.RegsIntr)
	}},
	{SampleFormatStackUser, []string{"StackUser", "StackUserDynSize"}, func(r *RecordSample) string {
		return fmt.Sprintf(" StackUser:[...] StackUserDynSize:%d", r.StackUserDynSize)
	}},
	{SampleFormatWeight, []string{"Weight"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Weight:%d", r.Weight)
	}},
	{SampleFormatDataSrc, []string{"DataSrc"}, func(r *RecordSample) string {
		return fmt.Sprintf(" DataSrc:%+v", r.DataSrc)
	}},
	{SampleFormatTransaction, []string{"Transaction", "AbortCode"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Transaction:%v AbortCode:%d", r.Transaction, r.AbortCode)
	}},
	{SampleFormatPhysAddr, []string{"PhysAddr"}, func(r *RecordSample) string {
		return fmt.Sprintf(" PhysAddr:%#x", r.PhysAddr)
	}},
	{SampleFormatAux, []string{"Aux"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Aux:%v", r.Aux)
	}},
	{SampleFormatCGroup, []string{"CGroup"}, func(r *RecordSample) string {
		return fmt.Sprintf(" CGroup:%d", r.CGroup)
	}},
	{SampleFormatDataPageSize, []string{"DataPageSize"}, func(r *RecordSample) string {
		return fmt.Sprintf(" DataPageSize:%#x", r.DataPageSize)
	}},
	{SampleFormatCodePageSize, []string{"CodePageSize"}, func(r *RecordSample) string {
		return fmt.Sprintf(" CodePageSize:%#x", r.CodePageSize)
	}},
	{SampleFormatWeightStruct, []string{"Weights"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Weights:%v", r.Weights)
	}},
	{SampleFormatRaw, []string{"Raw"}, func(r *RecordSample) string {
		return fmt.Sprintf(" Raw:%v", r.Raw)
	}},
}

// String renders the fields that r.Format marks as valid.
func (r *RecordSample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{Offset:%v Format:%v EventAttr:%p CPUMode:%v ExactIP:%v", r.Offset, r.Format, r.EventAttr, r.CPUMode, r.ExactIP)
	for _, f := range sampleFields {
		if r.Format&f.bit != 0 {
			b.WriteString(f.format(r))
		}
	}
	b.WriteByte('}')
	return b.String()
}

// Fields returns the names of the fields r.Format marks as valid, for
// callers writing their own formatting.
func (r *RecordSample) Fields() []string {
	fs := []string{"Offset", "Format", "EventAttr", "CPUMode", "ExactIP"}
	for _, f := range sampleFields {
		if r.Format&f.bit != 0 {
			fs = append(fs, f.names...)
		}
	}
	return fs
}

// CPUMode is the privilege level a sample or event was recorded at,
// corresponding to PERF_RECORD_MISC_CPUMODE.
type CPUMode uint16

// TODO: gendefs (need to extract from PERF_RECORD_MISC_* flags)
//go:generate stringer -type=CPUMode

const (
	CPUModeUnknown CPUMode = iota
	CPUModeKernel
	CPUModeUser
	CPUModeHypervisor
	CPUModeGuestKernel
	CPUModeGuestUser
)

// Count is a raw event counter reading. Which fields are valid is
// determined by the sample's EventAttr.ReadFormat.
type Count struct {
	Value       uint64
	TimeEnabled uint64     // if ReadFormatTotalTimeEnabled
	TimeRunning uint64     // if ReadFormatTotalTimeRunning
	EventAttr   *EventAttr // if ReadFormatID
}

// BranchRecord describes one branch in a sample's branch stack.
type BranchRecord struct {
	From, To uint64
	Flags    BranchFlags

	Cycles uint16 // cycles since the prior branch, or 0 if unknown

	// Type is the branch instruction's kind, determined by the
	// kernel disassembling the branch (since the binary itself may
	// not be available at decode time). Only set when
	// EventAttr.BranchSampleType&BranchSampleTypeSave is set.
	Type BranchType
}

// BranchFlags is a bitmask of properties of a single BranchRecord.
type BranchFlags uint64

//go:generate bitstringer -type=BranchFlags -strip=BranchFlag

const (
	// BranchFlagMispredicted marks a mispredicted branch target.
	BranchFlagMispredicted BranchFlags = 1 << iota

	// BranchFlagPredicted marks a correctly predicted branch target.
	// If prediction information is unavailable, neither flag is set.
	BranchFlagPredicted

	// BranchFlagInTransaction marks a branch that occurred inside a
	// transaction.
	BranchFlagInTransaction

	// BranchFlagAbort marks a branch that is itself a transaction
	// abort.
	BranchFlagAbort
)

// BranchType classifies the instruction that caused a branch.
type BranchType uint8

//gendefs PERF_BR_* BranchType -omit-max

const (
	BranchTypeUnknown  BranchType = iota
	BranchTypeCond
	BranchTypeUncond
	BranchTypeInd
	BranchTypeCall
	BranchTypeIndCall
	BranchTypeRet
	BranchTypeSyscall
	BranchTypeSysret
	BranchTypeCondCall
	BranchTypeCondRet
	BranchTypeEret
	BranchTypeIrq
)

//gendefs perf_callchain_context.PERF_CONTEXT_* Callchain uint64 -omit-max

// Callchain* markers appear in RecordSample.Callchain to delimit
// transitions between stack types, corresponding to PERF_CONTEXT_*.
const (
	CallchainHV          uint64 = 0xffffffffffffffe0 // -32
	CallchainKernel             = 0xffffffffffffff80 // -128
	CallchainUser               = 0xfffffffffffffe00 // -512
	CallchainGuest              = 0xfffffffffffff800 // -2048
	CallchainGuestKernel        = 0xfffffffffffff780 // -2176
	CallchainGuestUser          = 0xfffffffffffff600 // -2560
)

// SampleRegsABI identifies the register ABI in effect for a sample,
// on architectures that support more than one (e.g. x86-32 compat
// mode on an x86-64 kernel), corresponding to perf_sample_regs_abi.
type SampleRegsABI uint64

//gendefs perf_sample_regs_abi.PERF_SAMPLE_REGS_ABI_* SampleRegsABI
//go:generate stringer -type=SampleRegsABI

const (
	SampleRegsABINone SampleRegsABI = iota
	SampleRegsABI32
	SampleRegsABI64
)

// DataSrc decodes perf_mem_data_src: where a sampled memory access was
// served from and how.
type DataSrc struct {
	Op       DataSrcOp
	Miss     bool // if true, Level names a miss rather than a hit
	Level    DataSrcLevel
	Snoop    DataSrcSnoop
	Locked   DataSrcLock
	TLB      DataSrcTLB
	LevelNum DataSrcLevelNum
	Remote   bool
	Block    DataSrcBlock
	Hops     DataSrcHops
}

type DataSrcOp int

//go:generate bitstringer -type=DataSrcOp -strip=DataSrcOp

const (
	DataSrcOpLoad DataSrcOp = 1 << iota
	DataSrcOpStore
	DataSrcOpPrefetch
	DataSrcOpExec

	DataSrcOpNA DataSrcOp = 0
)

type DataSrcLevel int

//go:generate bitstringer -type=DataSrcLevel -strip=DataSrcLevel

const (
	DataSrcLevelL1  DataSrcLevel = 1 << iota
	DataSrcLevelLFB              // line-fill buffer
	DataSrcLevelL2
	DataSrcLevelL3
	DataSrcLevelLocalRAM     // local DRAM
	DataSrcLevelRemoteRAM1   // remote DRAM, 1 hop
	DataSrcLevelRemoteRAM2   // remote DRAM, 2 hops
	DataSrcLevelRemoteCache1 // remote cache, 1 hop
	DataSrcLevelRemoteCache2 // remote cache, 2 hops
	DataSrcLevelIO           // I/O memory
	DataSrcLevelUncached

	DataSrcLevelNA DataSrcLevel = 0
)

type DataSrcSnoop int

//go:generate bitstringer -type=DataSrcSnoop -strip=DataSrcSnoop

const (
	DataSrcSnoopNone DataSrcSnoop = 1 << iota
	DataSrcSnoopHit
	DataSrcSnoopMiss
	DataSrcSnoopHitM // snoop hit on modified data
	DataSrcSnoopFwd

	DataSrcSnoopNA DataSrcSnoop = 0
)

type DataSrcLock int

//go:generate stringer -type=DataSrcLock

const (
	DataSrcLockNA DataSrcLock = iota
	DataSrcLockUnlocked
	DataSrcLockLocked
)

type DataSrcTLB int

//go:generate bitstringer -type=DataSrcTLB -strip=DataSrcTLB

const (
	DataSrcTLBHit DataSrcTLB = 1 << iota
	DataSrcTLBMiss
	DataSrcTLBL1
	DataSrcTLBL2
	DataSrcTLBHardwareWalker
	DataSrcTLBOSFaultHandler

	DataSrcTLBNA DataSrcTLB = 0
)

type DataSrcLevelNum int

// TODO gendefs (macros)
//go:generate stringer -type=DataSrcLevelNum

const (
	DataSrcLevelNumL1       DataSrcLevelNum = 0x01
	DataSrcLevelNumL2       DataSrcLevelNum = 0x02
	DataSrcLevelNumL3       DataSrcLevelNum = 0x03
	DataSrcLevelNumL4       DataSrcLevelNum = 0x04
	DataSrcLevelNumAnyCache DataSrcLevelNum = 0x0b
	DataSrcLevelNumLFB      DataSrcLevelNum = 0x0c
	DataSrcLevelNumRAM      DataSrcLevelNum = 0x0d
	DataSrcLevelNumPMEM     DataSrcLevelNum = 0x0e
	DataSrcLevelNumNA       DataSrcLevelNum = 0x0f
)

type DataSrcBlock int

//go:generate bitstringer -type=DataSrcBlock -strip=DataSrcBlock

const (
	DataSrcBlockData DataSrcBlock = 1 << iota // data could not be forwarded
	DataSrcBlockAddr                          // address conflict

	DataSrcBlockNA DataSrcBlock = 0
)

type DataSrcHops int

//go:generate stringer -type=DataSrcHops

const (
	DataSrcHopsCore   DataSrcHops = 1 // remote core, same node
	DataSrcHopsNode   DataSrcHops = 2 // remote node, same socket
	DataSrcHopsSocket DataSrcHops = 3 // remote socket, same board
	DataSrcHopesBoard DataSrcHops = 4 // remote board

	DataSrcHopsNA DataSrcHops = 0
)

// Transaction is a bitmask describing the transactional-memory context
// of a sample, corresponding to the PERF_TXN_* constants (minus the
// abort-code bits, which this reader pulls out into AbortCode).
type Transaction int

//gendefs PERF_TXN_* Transaction -omit-max -omit PERF_TXN_ABORT_MASK -omit PERF_TXN_ABORT_SHIFT
//go:generate bitstringer -type=Transaction -strip=Transaction

const (
	TransactionElision        Transaction = 1 << iota // originated from elision
	TransactionTransaction                            // originated from a transaction
	TransactionSync                                    // instruction is related to the abort
	TransactionAsync                                   // instruction is unrelated to the abort
	TransactionRetry                                   // retrying may succeed
	TransactionConflict                                // aborted due to a data conflict
	TransactionCapacityWrite                           // aborted due to a capacity write
	TransactionCapacityRead                            // aborted due to a capacity read
)

// Weights holds the three architecture-defined sub-weights packed
// into a PERF_SAMPLE_WEIGHT_STRUCT sample.
type Weights struct {
	Var1 uint32
	Var2 uint16
	Var3 uint16
}
