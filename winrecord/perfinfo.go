package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// SampledProfileEvent is the perfinfo/46 version-2 record: one timer (or
// named-source) sample, carrying the interrupted instruction pointer.
type SampledProfileEvent struct {
	InstructionPointer uint64
	ThreadID           uint32
	Count              uint32
}

// ParseSampledProfileV2 decodes a perfinfo/46 version-2 record.
func ParseSampledProfileV2(buf []byte, ptrSize int) (SampledProfileEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	ip, err := v.Pointer(0, ptrSize)
	if err != nil {
		return SampledProfileEvent{}, err
	}
	tid, err := v.U32(ptrSize)
	if err != nil {
		return SampledProfileEvent{}, err
	}
	count, err := v.U32(ptrSize + 4)
	if err != nil {
		return SampledProfileEvent{}, err
	}
	return SampledProfileEvent{InstructionPointer: ip, ThreadID: tid, Count: count}, nil
}

// PMCCounterProfileEvent is the perfinfo/47 version-2 record: one
// performance-monitoring-counter overflow sample.
type PMCCounterProfileEvent struct {
	InstructionPointer uint64
	ThreadID           uint32
	Source             uint32
}

// ParsePMCCounterProfileV2 decodes a perfinfo/47 version-2 record.
func ParsePMCCounterProfileV2(buf []byte, ptrSize int) (PMCCounterProfileEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	ip, err := v.Pointer(0, ptrSize)
	if err != nil {
		return PMCCounterProfileEvent{}, err
	}
	tid, err := v.U32(ptrSize)
	if err != nil {
		return PMCCounterProfileEvent{}, err
	}
	source, err := v.U32(ptrSize + 4)
	if err != nil {
		return PMCCounterProfileEvent{}, err
	}
	return PMCCounterProfileEvent{InstructionPointer: ip, ThreadID: tid, Source: source}, nil
}

// PMCCounterConfigEvent is the perfinfo/72 version-2 record, which assigns
// a human-readable name to a PMC source id.
type PMCCounterConfigEvent struct {
	Source uint32
	Name   string
}

// ParsePMCCounterConfigV2 decodes a perfinfo/72 version-2 record.
func ParsePMCCounterConfigV2(buf []byte) (PMCCounterConfigEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	source, err := v.U32(0)
	if err != nil {
		return PMCCounterConfigEvent{}, err
	}
	name, err := v.CString16(4)
	if err != nil {
		return PMCCounterConfigEvent{}, err
	}
	return PMCCounterConfigEvent{Source: source, Name: name}, nil
}

// SampleIntervalEvent is the perfinfo/{73,74} version-3 record pair that
// reports the configured or actual sampling interval (in 100ns units) for
// the timer or a named PMC source.
type SampleIntervalEvent struct {
	Source      uint32
	NewInterval uint32
	OldInterval uint32
}

// ParseSampleIntervalV3 decodes a perfinfo/{73,74} version-3 record.
func ParseSampleIntervalV3(buf []byte) (SampleIntervalEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	source, err := v.U32(0)
	if err != nil {
		return SampleIntervalEvent{}, err
	}
	newInterval, err := v.U32(4)
	if err != nil {
		return SampleIntervalEvent{}, err
	}
	oldInterval, err := v.U32(8)
	if err != nil {
		return SampleIntervalEvent{}, err
	}
	return SampleIntervalEvent{Source: source, NewInterval: newInterval, OldInterval: oldInterval}, nil
}
