package winrecord

import (
	"encoding/binary"
	"testing"
)

func buildProcessRecord(ptrSize int) []byte {
	sidSize := 8 + 4*1 // revision+count+authority(6)+1 subauthority
	name := "cmd.exe"
	cmdLine := "cmd.exe /c dir"

	nameOff := 28 + 2*(ptrSize-4) + sidSize
	cmdOff := nameOff + len(name) + 1
	total := cmdOff + 2*(len(cmdLine)+1)

	buf := make([]byte, total)
	put := func(off int, v uint64, size int) {
		switch size {
		case 4:
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf[off:], v)
		}
	}

	off := DynOffset(0, 0, ptrSize)
	put(off, 0xDEADBEEF, ptrSize) // unique_process_key
	put(DynOffset(4, 1, ptrSize), 42, 4)    // process_id
	put(DynOffset(8, 1, ptrSize), 1, 4)     // parent_id
	put(DynOffset(12, 1, ptrSize), 7, 4)    // session_id
	// exit_status left zero
	put(DynOffset(20, 1, ptrSize), 0x1000, ptrSize) // directory_table_base
	put(DynOffset(24, 2, ptrSize), 0x3, 4)          // flags

	sidOff := DynOffset(28, 2, ptrSize)
	buf[sidOff] = 1   // revision
	buf[sidOff+1] = 1 // sub-authority count
	binary.LittleEndian.PutUint32(buf[sidOff+8:], 544)

	copy(buf[nameOff:], name)
	for i, r := range cmdLine {
		binary.LittleEndian.PutUint16(buf[cmdOff+2*i:], uint16(r))
	}

	return buf
}

func TestParseProcessEventV4(t *testing.T) {
	for _, ptrSize := range []int{4, 8} {
		buf := buildProcessRecord(ptrSize)
		ev, err := ParseProcessEventV4(buf, ptrSize)
		if err != nil {
			t.Fatalf("ptrSize=%d: ParseProcessEventV4: %v", ptrSize, err)
		}
		if ev.ProcessID != 42 || ev.ParentID != 1 || ev.SessionID != 7 {
			t.Errorf("ptrSize=%d: got pid=%d parent=%d session=%d", ptrSize, ev.ProcessID, ev.ParentID, ev.SessionID)
		}
		if ev.ImageFileName != "cmd.exe" {
			t.Errorf("ptrSize=%d: ImageFileName = %q", ptrSize, ev.ImageFileName)
		}
		if ev.CommandLine != "cmd.exe /c dir" {
			t.Errorf("ptrSize=%d: CommandLine = %q", ptrSize, ev.CommandLine)
		}
		if len(ev.UserSID.SubAuthority) != 1 || ev.UserSID.SubAuthority[0] != 544 {
			t.Errorf("ptrSize=%d: UserSID = %+v", ptrSize, ev.UserSID)
		}
	}
}
