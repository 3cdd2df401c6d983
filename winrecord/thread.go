package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// ThreadEvent is the classic thread start/end record (types Start=1,
// End=2, DCStart=3, DCEnd=4; version 3).
type ThreadEvent struct {
	ProcessID      uint32
	ThreadID       uint32
	StackBase      uint64
	StackLimit     uint64
	UserStackBase  uint64
	UserStackLimit uint64
	Affinity       uint64
	Win32StartAddr uint64
	TebBase        uint64
	SubProcessTag  uint32
	BasePriority   uint8
	PagePriority   uint8
	IOPriority     uint8
	ThreadFlags    uint8
}

// ParseThreadEventV3 decodes a thread/{1,2,3,4} version-3 record.
func ParseThreadEventV3(buf []byte, ptrSize int) (ThreadEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)

	pid, err := v.U32(0)
	if err != nil {
		return ThreadEvent{}, err
	}
	tid, err := v.U32(4)
	if err != nil {
		return ThreadEvent{}, err
	}
	off := 8
	readPtr := func() (uint64, error) {
		x, err := v.Pointer(off, ptrSize)
		off += ptrSize
		return x, err
	}
	stackBase, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	stackLimit, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	userStackBase, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	userStackLimit, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	affinity, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	win32Start, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	teb, err := readPtr()
	if err != nil {
		return ThreadEvent{}, err
	}
	subTag, err := v.U32(off)
	if err != nil {
		return ThreadEvent{}, err
	}
	off += 4
	basePrio, err := v.U8(off)
	if err != nil {
		return ThreadEvent{}, err
	}
	pagePrio, err := v.U8(off + 1)
	if err != nil {
		return ThreadEvent{}, err
	}
	ioPrio, err := v.U8(off + 2)
	if err != nil {
		return ThreadEvent{}, err
	}
	flags, err := v.U8(off + 3)
	if err != nil {
		return ThreadEvent{}, err
	}

	return ThreadEvent{
		ProcessID: pid, ThreadID: tid,
		StackBase: stackBase, StackLimit: stackLimit,
		UserStackBase: userStackBase, UserStackLimit: userStackLimit,
		Affinity: affinity, Win32StartAddr: win32Start, TebBase: teb,
		SubProcessTag: subTag,
		BasePriority:  basePrio, PagePriority: pagePrio, IOPriority: ioPrio, ThreadFlags: flags,
	}, nil
}

// ThreadSetNameEvent is the thread/2 version-2 "set thread name" record,
// distinct from the version-3 thread/2 End record in the same (group,
// type) slot: callers disambiguate by the header's reported version.
type ThreadSetNameEvent struct {
	ProcessID uint32
	ThreadID  uint32
	Name      string
}

// ParseThreadSetNameV2 decodes a thread/2 version-2 record.
func ParseThreadSetNameV2(buf []byte) (ThreadSetNameEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	pid, err := v.U32(0)
	if err != nil {
		return ThreadSetNameEvent{}, err
	}
	tid, err := v.U32(4)
	if err != nil {
		return ThreadSetNameEvent{}, err
	}
	name, err := v.CString16(8)
	if err != nil {
		return ThreadSetNameEvent{}, err
	}
	return ThreadSetNameEvent{ProcessID: pid, ThreadID: tid, Name: name}, nil
}

// ContextSwitchEvent is the thread/4 version-4 context-switch record. It
// carries no pointer-sized fields, so its layout does not vary with trace
// bitness.
type ContextSwitchEvent struct {
	NewThreadID             uint32
	OldThreadID              uint32
	NewThreadPriority        int8
	OldThreadPriority        int8
	PreviousCState           uint8
	SpareByte                int8
	OldThreadWaitReason      int8
	OldThreadWaitMode        int8
	OldThreadState           int8
	OldThreadWaitIdealProcessor int8
	NewThreadWaitTime        uint32
}

// ParseContextSwitchV4 decodes a thread/4 version-4 record.
func ParseContextSwitchV4(buf []byte) (ContextSwitchEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	newTid, err := v.U32(0)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	oldTid, err := v.U32(4)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	b := func(off int) (int8, error) {
		x, err := v.U8(off)
		return int8(x), err
	}
	newPrio, err := b(8)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	oldPrio, err := b(9)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	pstate, err := v.U8(10)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	spare, err := b(11)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	waitReason, err := b(12)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	waitMode, err := b(13)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	state, err := b(14)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	idealProc, err := b(15)
	if err != nil {
		return ContextSwitchEvent{}, err
	}
	waitTime, err := v.U32(16)
	if err != nil {
		return ContextSwitchEvent{}, err
	}

	return ContextSwitchEvent{
		NewThreadID: newTid, OldThreadID: oldTid,
		NewThreadPriority: newPrio, OldThreadPriority: oldPrio,
		PreviousCState: pstate, SpareByte: spare,
		OldThreadWaitReason: waitReason, OldThreadWaitMode: waitMode,
		OldThreadState: state, OldThreadWaitIdealProcessor: idealProc,
		NewThreadWaitTime: waitTime,
	}, nil
}
