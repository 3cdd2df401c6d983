package linuxtrace

/*gendefs:C
#include <include/uapi/linux/perf_event.h>
*/

//go:generate stringer -type=EventHardware,EventSoftware,HWCache,HWCacheOp,HWCacheResult
//go:generate go run ../cmd/bitstringer/main.go -type=BreakpointOp -strip=BreakpointOp

// EventGeneric is the type-erased form of a performance event: the
// major class (hardware counter, software counter, tracepoint, ...)
// plus whatever numeric configuration that class needs. Every
// concrete Event implementation can round-trip through EventGeneric,
// which is how EventAttr stores an event regardless of its kind.
type EventGeneric struct {
	// Type is the major class this event belongs to.
	Type EventType

	// ID identifies the specific event within Type.
	//
	// On the wire (perf_event_attr) this is either Config, or,
	// when Type is EventTypeBreakpoint, BPType.
	ID uint64

	// Config carries any extra per-event configuration Type and ID
	// don't fully capture.
	//
	// On the wire this is BPAddr and BPLen.
	Config []uint64
}

// Decode converts a generic event back into its specific Go type
// (EventHardware, EventSoftware, and so on), or an opaque placeholder
// if Type isn't one this reader recognizes.
func (g *EventGeneric) Decode() Event {
	switch g.Type {
	case EventTypeHardware:
		return EventHardware(g.ID)

	case EventTypeSoftware:
		return EventSoftware(g.ID)

	case EventTypeTracepoint:
		return EventTracepoint(g.ID)

	case EventTypeHWCache:
		return EventHWCache{
			HWCache(g.ID),
			HWCacheOp(g.ID >> 8),
			HWCacheResult(g.ID >> 16),
		}

	case EventTypeRaw:
		return EventRaw(g.ID)

	case EventTypeBreakpoint:
		return EventBreakpoint{
			BreakpointOp(g.ID),
			g.Config[0],
			g.Config[1],
		}
	}

	return eventUnknown{*g}
}

// eventUnknown wraps an EventGeneric whose Type this reader doesn't
// have a concrete Go representation for.
type eventUnknown struct {
	g EventGeneric
}

func (e eventUnknown) Generic() EventGeneric {
	return e.g
}

// EventHardware identifies one of the kernel's built-in hardware
// performance counters, corresponding to the perf_hw_id enum.
type EventHardware uint64

//gendefs perf_hw_id.PERF_COUNT_HW_* EventHardware -omit-max

const (
	EventHardwareCPUCycles EventHardware = iota
	EventHardwareInstructions
	EventHardwareCacheReferences
	EventHardwareCacheMisses
	EventHardwareBranchInstructions
	EventHardwareBranchMisses
	EventHardwareBusCycles
	EventHardwareStalledCyclesFrontend
	EventHardwareStalledCyclesBackend
	EventHardwareRefCPUCycles
)

func (e EventHardware) Generic() EventGeneric {
	return EventGeneric{Type: EventTypeHardware, ID: uint64(e)}
}

// EventSoftware identifies one of the kernel's software-derived
// counters (context switches, faults, and the like), corresponding to
// the perf_sw_ids enum.
type EventSoftware uint64

//gendefs perf_sw_ids.PERF_COUNT_SW_* EventSoftware -omit-max

const (
	EventSoftwareCPUClock EventSoftware = iota
	EventSoftwareTaskClock
	EventSoftwarePageFaults
	EventSoftwareContextSwitches
	EventSoftwareCPUMigrations
	EventSoftwarePageFaultsMin
	EventSoftwarePageFaultsMaj
	EventSoftwareAlignmentFaults
	EventSoftwareEmulationFaults
	EventSoftwareDummy
	EventSoftwareBpfOutput
)

func (e EventSoftware) Generic() EventGeneric {
	return EventGeneric{Type: EventTypeSoftware, ID: uint64(e)}
}

// EventTracepoint identifies a kernel tracepoint. Its numeric value is
// whatever ID the kernel assigned that tracepoint at trace time (the
// same ID exposed under tracing/events/*/*/id on a live system).
type EventTracepoint uint64

func (e EventTracepoint) Generic() EventGeneric {
	return EventGeneric{Type: EventTypeTracepoint, ID: uint64(e)}
}

// EventHWCache identifies a hardware cache event: which cache level,
// what kind of access, and whether it's counting hits or misses.
type EventHWCache struct {
	Level  HWCache
	Op     HWCacheOp
	Result HWCacheResult
}

func (e EventHWCache) Generic() EventGeneric {
	id := uint64(e.Level) | uint64(e.Op)<<8 | uint64(e.Result)<<16
	return EventGeneric{Type: EventTypeHWCache, ID: id}
}

// HWCache names a level of the hardware cache hierarchy, corresponding
// to the perf_hw_cache_id enum.
type HWCache uint8

//gendefs perf_hw_cache_id.PERF_COUNT_HW_CACHE_* HWCache -omit-max

const (
	HWCacheL1D HWCache = iota
	HWCacheL1I
	HWCacheLL
	HWCacheDTLB
	HWCacheITLB
	HWCacheBPU
	HWCacheNode
)

// HWCacheOp names a type of access made to a hardware cache,
// corresponding to the perf_hw_cache_op_id enum.
type HWCacheOp uint8

//gendefs perf_hw_cache_op_id.PERF_COUNT_HW_CACHE_OP_* HWCacheOp -omit-max

const (
	HWCacheOpRead HWCacheOp = iota
	HWCacheOpWrite
	HWCacheOpPrefetch
)

// HWCacheResult names the outcome of a hardware cache access,
// corresponding to the perf_hw_cache_op_result_id enum.
type HWCacheResult uint8

//gendefs perf_hw_cache_op_result_id.PERF_COUNT_HW_CACHE_RESULT_* HWCacheResult -omit-max

const (
	HWCacheResultAccess HWCacheResult = iota
	HWCacheResultMiss
)

// EventRaw is a CPU-model-specific PMU event, passed through in
// whatever encoding that CPU's documentation defines.
type EventRaw uint64

func (e EventRaw) Generic() EventGeneric {
	return EventGeneric{Type: EventTypeRaw, ID: uint64(e)}
}

// EventBreakpoint is a hardware watchpoint: it fires when the CPU
// observes Op-type access to the Len bytes starting at Addr.
type EventBreakpoint struct {
	Op   BreakpointOp
	Addr uint64
	// Len is the number of bytes watched at Addr. Supported sizes
	// are hardware-dependent but are generally small powers of two.
	Len uint64
}

func (e EventBreakpoint) Generic() EventGeneric {
	return EventGeneric{Type: EventTypeBreakpoint, ID: uint64(e.Op), Config: []uint64{e.Addr, e.Len}}
}

// BreakpointOp is a bitmask of access types that can arm a breakpoint
// event, corresponding to the HW_BREAKPOINT_* constants from
// hw_breakpoint.h.
type BreakpointOp uint32

const (
	BreakpointOpR  BreakpointOp = 1
	BreakpointOpW               = 2
	BreakpointOpRW              = BreakpointOpR | BreakpointOpW
	BreakpointOpX               = 4
)
