package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// ProcessEvent is the classic process group record (types Load=1,
// Unload=2, DCStart=3, DCEnd=4, Defunct=39; version 4), keyed by
// (group=process, version=4) in the dispatch registry.
type ProcessEvent struct {
	UniqueProcessKey uint64
	ProcessID        uint32
	ParentID         uint32
	SessionID        uint32
	ExitStatus       int32
	DirectoryTableBase uint64
	Flags            uint32
	UserSID          bytesview.SID
	ImageFileName    string
	CommandLine      string
}

// ParseProcessEventV4 decodes a process/{1,2,3,4,39} version-4 record from
// buf (the record's user-data region, not including the trace header).
func ParseProcessEventV4(buf []byte, ptrSize int) (ProcessEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)

	key, err := v.Pointer(DynOffset(0, 0, ptrSize), ptrSize)
	if err != nil {
		return ProcessEvent{}, err
	}
	pid, err := v.U32(DynOffset(4, 1, ptrSize))
	if err != nil {
		return ProcessEvent{}, err
	}
	parent, err := v.U32(DynOffset(8, 1, ptrSize))
	if err != nil {
		return ProcessEvent{}, err
	}
	session, err := v.U32(DynOffset(12, 1, ptrSize))
	if err != nil {
		return ProcessEvent{}, err
	}
	exitStatus, err := v.I32(DynOffset(16, 1, ptrSize))
	if err != nil {
		return ProcessEvent{}, err
	}
	dirTableBase, err := v.Pointer(DynOffset(20, 1, ptrSize), ptrSize)
	if err != nil {
		return ProcessEvent{}, err
	}
	flags, err := v.U32(DynOffset(24, 2, ptrSize))
	if err != nil {
		return ProcessEvent{}, err
	}
	sidOff := DynOffset(28, 2, ptrSize)
	sid, err := v.SID(sidOff)
	if err != nil {
		return ProcessEvent{}, err
	}
	nameOff := sidOff + sid.DynamicSize()
	imageFileName, err := v.CString8(nameOff)
	if err != nil {
		return ProcessEvent{}, err
	}
	cmdOff := nameOff + len(imageFileName) + 1
	commandLine, err := v.CString16(cmdOff)
	if err != nil {
		return ProcessEvent{}, err
	}

	return ProcessEvent{
		UniqueProcessKey:   key,
		ProcessID:          pid,
		ParentID:           parent,
		SessionID:          session,
		ExitStatus:         exitStatus,
		DirectoryTableBase: dirTableBase,
		Flags:              flags,
		UserSID:            sid,
		ImageFileName:      imageFileName,
		CommandLine:        commandLine,
	}, nil
}
