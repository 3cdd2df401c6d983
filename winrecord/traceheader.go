// Package winrecord implements the Windows trace-header tagged union and
// the closed set of (group, type, version) / (guid, id, version) record
// views recognized by the core (spec §4.1, §4.2). Every view here borrows
// a byte range from a wintrace buffer and must not outlive it.
package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
	"github.com/gopherprof/tracecore/internal/traceerr"
)

// HeaderKind discriminates the seven on-disk trace-header shapes of spec
// §3.1/§4.3. Numeric values follow the trace_header_type enumeration from
// ntwmi.h as used by snail-server's original_source/src/etl/parser; they
// are internal tags, not re-derived from any live trace in this exercise.
type HeaderKind uint8

const (
	HeaderSystem32      HeaderKind = 1
	HeaderSystem64      HeaderKind = 2
	HeaderCompact32     HeaderKind = 3
	HeaderCompact64     HeaderKind = 4
	HeaderFullHeader32  HeaderKind = 10
	HeaderFullHeader64  HeaderKind = 11
	HeaderInstance32    HeaderKind = 12
	HeaderInstance64    HeaderKind = 13
	HeaderPerfInfo32    HeaderKind = 16
	HeaderPerfInfo64    HeaderKind = 17
	HeaderEventHeader32 HeaderKind = 18
	HeaderEventHeader64 HeaderKind = 19
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderSystem32:
		return "system32"
	case HeaderSystem64:
		return "system64"
	case HeaderCompact32:
		return "compact32"
	case HeaderCompact64:
		return "compact64"
	case HeaderFullHeader32:
		return "full_header32"
	case HeaderFullHeader64:
		return "full_header64"
	case HeaderInstance32:
		return "instance32"
	case HeaderInstance64:
		return "instance64"
	case HeaderPerfInfo32:
		return "perfinfo32"
	case HeaderPerfInfo64:
		return "perfinfo64"
	case HeaderEventHeader32:
		return "event_header32"
	case HeaderEventHeader64:
		return "event_header64"
	default:
		return "unknown"
	}
}

// Marker flag bits observed in byte 3 (header_flags) of every record's
// first four bytes (spec §6.1).
const (
	markerTraceHeaderFlag      = 0x80
	markerTraceHeaderEventFlag = 0x40
	markerTraceMessageFlag     = 0x10
)

// PeekMarker inspects the first four bytes of a record without consuming
// them: a 16-bit field (version for compact/perfinfo, size for
// full-header/instance/event-header), the header-type byte, and the
// header-flags byte. It validates the trace-header/event-trace/message
// bits required by spec §6.1.
func PeekMarker(buf []byte) (kind HeaderKind, err error) {
	v := bytesview.New(buf, binary.LittleEndian)
	if len(buf) < 4 {
		return 0, traceerr.Newf(traceerr.Truncated, "record marker needs 4 bytes, have %d", len(buf))
	}
	flags, _ := v.U8(3)
	if flags&markerTraceHeaderFlag == 0 || flags&markerTraceHeaderEventFlag == 0 {
		return 0, traceerr.Newf(traceerr.MalformedRecord, "record marker missing trace-header/event-trace flags (flags=%#x)", flags)
	}
	if flags&markerTraceMessageFlag != 0 {
		return 0, traceerr.Newf(traceerr.MalformedRecord, "record marker has trace-message flag set (flags=%#x)", flags)
	}
	ht, _ := v.U8(2)
	return HeaderKind(ht), nil
}

// CommonFields is the normalized subset of header fields every shape
// provides, used to build a dispatch.CommonHeader.
type CommonFields struct {
	Kind      HeaderKind
	Size      int // header size in bytes, not counting any extended perfinfo fields
	ThreadID  uint32
	ProcessID uint32
	Timestamp uint64

	// Classic (group, type) fields, valid when Kind is system/compact/perfinfo.
	Group byte
	Type  byte

	// Modern (GUID, id) fields, valid when Kind is full-header/instance/event-header.
	GUID    bytesview.GUID
	EventID uint16

	// Version is the record version, set for every Kind.
	Version uint16
}

// ParseHeader decodes the trace-header at the start of buf and returns the
// normalized common fields, the byte offset where the record's user-data
// payload begins, and the record's total declared length (header plus
// payload) as written on the wire — for the classic shapes that is the
// wmi_trace_packet's own size field, for the modern shapes it is the
// leading size() field every one of them starts with (original_source's
// trace_headers/*.hpp). ptrSize is unused for header decoding itself (none
// of the seven shapes embed a pointer-sized field) but is threaded through
// so callers have it on hand for the perfinfo extended-info computation
// below.
func ParseHeader(buf []byte, ptrSize int) (fields CommonFields, bodyOffset int, recordSize int, err error) {
	kind, err := PeekMarker(buf)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	v := bytesview.New(buf, binary.LittleEndian)

	switch kind {
	case HeaderSystem32, HeaderSystem64:
		return parseSystem(&v, kind)
	case HeaderCompact32, HeaderCompact64:
		return parseCompact(&v, kind)
	case HeaderPerfInfo32, HeaderPerfInfo64:
		return parsePerfInfo(&v, kind)
	case HeaderFullHeader32, HeaderFullHeader64:
		return parseFullHeader(&v, kind)
	case HeaderInstance32, HeaderInstance64:
		return parseInstance(&v, kind)
	case HeaderEventHeader32, HeaderEventHeader64:
		return parseEventHeader(&v, kind)
	default:
		return CommonFields{}, 0, 0, traceerr.Newf(traceerr.MalformedRecord, "unknown trace-header type %d", kind)
	}
}

const wmiTracePacketSize = 4 // size u16, type u8, group u8

// readWmiTracePacket decodes a wmi_trace_packet at v[off:off+4]: its own
// declared total record size, followed by the (type, group) pair classic
// headers key their handler lookup on.
func readWmiTracePacket(v *bytesview.View, off int) (size uint16, typ, group byte, err error) {
	size, err = v.U16(off)
	if err != nil {
		return 0, 0, 0, err
	}
	t, err := v.U8(off + 2)
	if err != nil {
		return 0, 0, 0, err
	}
	g, err := v.U8(off + 3)
	if err != nil {
		return 0, 0, 0, err
	}
	return size, t, g, nil
}

// system_trace_header: version(2) header_type(1) header_flags(1) packet(4)
// thread_id(4) process_id(4) system_time(8) kernel_time(4) user_time(4) = 32
func parseSystem(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 32
	version, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	recordSize, typ, group, err := readWmiTracePacket(v, 4)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	tid, err := v.U32(8)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	pid, err := v.U32(12)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(16)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	return CommonFields{Kind: kind, Size: size, ThreadID: tid, ProcessID: pid, Timestamp: ts, Group: group, Type: typ, Version: version}, size, int(recordSize), nil
}

// compact_trace_header: version(2) header_type(1) header_flags(1) packet(4)
// thread_id(4) process_id(4) system_time(8) = 24
func parseCompact(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 24
	version, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	recordSize, typ, group, err := readWmiTracePacket(v, 4)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	tid, err := v.U32(8)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	pid, err := v.U32(12)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(16)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	return CommonFields{Kind: kind, Size: size, ThreadID: tid, ProcessID: pid, Timestamp: ts, Group: group, Type: typ, Version: version}, size, int(recordSize), nil
}

// perfinfo_trace_header: version(2) header_type(1) header_flags(1) packet(4)
// system_time(8) = 16, optionally followed by extended PEBS/PMC values
// (see ParsePerfInfoExtra).
func parsePerfInfo(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 16
	version, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	recordSize, typ, group, err := readWmiTracePacket(v, 4)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(8)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	// The user data begins after the extended PEBS/PMC items, whose
	// presence and count the version field encodes (see ParsePerfInfoExtra).
	ext := 8 * int((version>>8)&0x7)
	if version&0x8000 != 0 {
		ext += 8
	}
	return CommonFields{Kind: kind, Size: size, Timestamp: ts, Group: group, Type: typ, Version: version}, size + ext, int(recordSize), nil
}

// PerfInfoExtended carries the optional PEBS value and performance-counter
// values that follow a fixed perfinfo header (spec §4.3). N is encoded in
// bits 8-10 of the header's version field; the PEBS value is present when
// the version's high bit (bit 15) is set.
type PerfInfoExtended struct {
	PEBS      *uint64
	Counters  []uint64
}

// ParsePerfInfoExtra reads the extended items following a perfinfo header
// at offset headerSize in buf, returning them plus the total extended
// length that must be added to the fixed header size before the user-data
// region begins.
func ParsePerfInfoExtra(buf []byte, headerSize int, version uint16) (PerfInfoExtended, int, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	n := int((version >> 8) & 0x7)
	hasPEBS := version&0x8000 != 0

	off := headerSize
	var out PerfInfoExtended
	if hasPEBS {
		pebs, err := v.U64(off)
		if err != nil {
			return PerfInfoExtended{}, 0, err
		}
		out.PEBS = &pebs
		off += 8
	}
	if n > 0 {
		out.Counters = make([]uint64, n)
		for i := 0; i < n; i++ {
			c, err := v.U64(off)
			if err != nil {
				return PerfInfoExtended{}, 0, err
			}
			out.Counters[i] = c
			off += 8
		}
	}
	return out, off - headerSize, nil
}

// full_header_trace_header: size(2) header_type(1) header_flags(1)
// trace_class{type,level,version}(4) thread_id(4) process_id(4)
// timestamp(8) guid(16) processor_time/kernel+user(8) = 48
func parseFullHeader(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 48
	recordSize, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	classVersion, err := v.U16(6)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	tid, err := v.U32(8)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	pid, err := v.U32(12)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(16)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	guid, err := v.GUID(24)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	return CommonFields{Kind: kind, Size: size, ThreadID: tid, ProcessID: pid, Timestamp: ts, GUID: guid, Version: classVersion}, size, int(recordSize), nil
}

// instance_trace_header: size(2) header_type(1) header_flags(1)
// version(8) thread_id(4) process_id(4) timestamp(8) guid(16)
// kernel/user(8) instance_id(4) parent_instance_id(4) parent_guid(16) = 76
func parseInstance(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 76
	recordSize, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	version, err := v.U64(4)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	tid, err := v.U32(12)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	pid, err := v.U32(16)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(20)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	guid, err := v.GUID(28)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	return CommonFields{Kind: kind, Size: size, ThreadID: tid, ProcessID: pid, Timestamp: ts, GUID: guid, Version: uint16(version)}, size, int(recordSize), nil
}

// event_header_trace_header: size(2) header_type(1) header_flags(1)
// flags(2) event_property(2) thread_id(4) process_id(4) timestamp(8)
// provider_id(16) event_descriptor{id(2) version(1) channel(1) level(1)
// opcode(1) task(2) keyword(8)}(16) processor_time(8) activity_id(16) = 80
//
// The core only supports event-header records without the extended-info
// flag (spec §9 Open Questions); records that carry it are rejected as
// UnsupportedTrace rather than silently skipped.
const eventHeaderFlagExtendedInfo = 0x0001

func parseEventHeader(v *bytesview.View, kind HeaderKind) (CommonFields, int, int, error) {
	const size = 80
	recordSize, err := v.U16(0)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	flags, err := v.U16(4)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	if flags&eventHeaderFlagExtendedInfo != 0 {
		return CommonFields{}, 0, 0, traceerr.Newf(traceerr.UnsupportedTrace, "event-header record with extended info is not supported")
	}
	tid, err := v.U32(8)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	pid, err := v.U32(12)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	ts, err := v.U64(16)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	guid, err := v.GUID(24)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	eventID, err := v.U16(40)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	eventVersion, err := v.U8(42)
	if err != nil {
		return CommonFields{}, 0, 0, err
	}
	return CommonFields{
		Kind: kind, Size: size, ThreadID: tid, ProcessID: pid, Timestamp: ts,
		GUID: guid, EventID: eventID, Version: uint16(eventVersion),
	}, size, int(recordSize), nil
}
