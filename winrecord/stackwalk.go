package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// StackWalkEvent is the stackwalk/32 version-2 record: a flat sequence of
// return addresses captured for one sample, deepest (leaf) frame first, as
// used by spec §4.6's sample+stack resolution.
type StackWalkEvent struct {
	EventTimestamp uint64
	ProcessID      uint32
	ThreadID       uint32
	Addresses      []uint64
}

const stackWalkHeaderSize = 16

// ParseStackWalkV2 decodes a stackwalk/32 version-2 record. The number of
// captured addresses is derived from the record's total length and
// ptrSize, since the record carries no explicit frame count.
func ParseStackWalkV2(buf []byte, ptrSize int) (StackWalkEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)

	ts, err := v.U64(0)
	if err != nil {
		return StackWalkEvent{}, err
	}
	pid, err := v.U32(8)
	if err != nil {
		return StackWalkEvent{}, err
	}
	tid, err := v.U32(12)
	if err != nil {
		return StackWalkEvent{}, err
	}

	n := (len(buf) - stackWalkHeaderSize) / ptrSize
	addrs := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		a, err := v.Pointer(stackWalkHeaderSize+i*ptrSize, ptrSize)
		if err != nil {
			return StackWalkEvent{}, err
		}
		addrs = append(addrs, a)
	}

	return StackWalkEvent{EventTimestamp: ts, ProcessID: pid, ThreadID: tid, Addresses: addrs}, nil
}

// StackWalkKeyEvent is the stackwalk-with-key variant, used when the
// session groups samples and stacks by an opaque key rather than by
// (process, thread) directly.
type StackWalkKeyEvent struct {
	StackKey  uint64
	Addresses []uint64
}

// ParseStackWalkKeyV2 decodes a stackwalk-with-key version-2 record: an
// 8-byte key followed by the same flat address sequence as StackWalkEvent.
func ParseStackWalkKeyV2(buf []byte, ptrSize int) (StackWalkKeyEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	key, err := v.U64(0)
	if err != nil {
		return StackWalkKeyEvent{}, err
	}
	const headerSize = 8
	n := (len(buf) - headerSize) / ptrSize
	addrs := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		a, err := v.Pointer(headerSize+i*ptrSize, ptrSize)
		if err != nil {
			return StackWalkKeyEvent{}, err
		}
		addrs = append(addrs, a)
	}
	return StackWalkKeyEvent{StackKey: key, Addresses: addrs}, nil
}
