package winrecord

import (
	"encoding/binary"
	"testing"
)

func putCompactHeader(version uint16, headerType HeaderKind, typ, group byte, tid, pid uint32, ts uint64, packetSize uint16) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint16(buf[0:], version)
	buf[2] = byte(headerType)
	buf[3] = markerTraceHeaderFlag | markerTraceHeaderEventFlag
	binary.LittleEndian.PutUint16(buf[4:], packetSize) // packet.size
	buf[6] = typ
	buf[7] = group
	binary.LittleEndian.PutUint32(buf[8:], tid)
	binary.LittleEndian.PutUint32(buf[12:], pid)
	binary.LittleEndian.PutUint64(buf[16:], ts)
	return buf
}

func TestParseHeaderCompact(t *testing.T) {
	// packet.size (40) includes the event payload trailing the 24-byte
	// header struct, so it must come back distinct from bodyOffset.
	buf := putCompactHeader(1, HeaderCompact32, 5, 9, 111, 222, 0x1234, 40)
	fields, bodyOffset, recordSize, err := ParseHeader(buf, 4)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if bodyOffset != 24 {
		t.Errorf("bodyOffset = %d, want 24", bodyOffset)
	}
	if recordSize != 40 {
		t.Errorf("recordSize = %d, want 40", recordSize)
	}
	if fields.Kind != HeaderCompact32 {
		t.Errorf("Kind = %v, want HeaderCompact32", fields.Kind)
	}
	if fields.ThreadID != 111 || fields.ProcessID != 222 {
		t.Errorf("ThreadID/ProcessID = %d/%d, want 111/222", fields.ThreadID, fields.ProcessID)
	}
	if fields.Timestamp != 0x1234 {
		t.Errorf("Timestamp = %#x, want 0x1234", fields.Timestamp)
	}
	if fields.Type != 5 || fields.Group != 9 {
		t.Errorf("Type/Group = %d/%d, want 5/9", fields.Type, fields.Group)
	}
}

func TestPeekMarkerRejectsMissingFlags(t *testing.T) {
	buf := make([]byte, 24)
	buf[2] = byte(HeaderCompact32)
	buf[3] = 0 // no trace-header/event-trace flags
	if _, err := PeekMarker(buf); err == nil {
		t.Fatal("PeekMarker: expected error for missing marker flags, got nil")
	}
}

func TestPeekMarkerRejectsTraceMessage(t *testing.T) {
	buf := make([]byte, 24)
	buf[2] = byte(HeaderCompact32)
	buf[3] = markerTraceHeaderFlag | markerTraceHeaderEventFlag | markerTraceMessageFlag
	if _, err := PeekMarker(buf); err == nil {
		t.Fatal("PeekMarker: expected error for trace-message flag, got nil")
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	if _, _, _, err := ParseHeader([]byte{1, 2}, 4); err == nil {
		t.Fatal("ParseHeader: expected error for short buffer, got nil")
	}
}

func TestParseEventHeaderRejectsExtendedInfo(t *testing.T) {
	buf := make([]byte, 80)
	buf[2] = byte(HeaderEventHeader64)
	buf[3] = markerTraceHeaderFlag | markerTraceHeaderEventFlag
	binary.LittleEndian.PutUint16(buf[4:], eventHeaderFlagExtendedInfo)
	if _, _, _, err := ParseHeader(buf, 8); err == nil {
		t.Fatal("ParseHeader: expected UnsupportedTrace for extended-info event-header, got nil")
	}
}

func TestParsePerfInfoExtra(t *testing.T) {
	const headerSize = 16
	version := uint16(0x8000 | (2 << 8)) // PEBS present, 2 counters
	buf := make([]byte, headerSize+8+2*8)
	binary.LittleEndian.PutUint64(buf[headerSize:], 0xAAAA)
	binary.LittleEndian.PutUint64(buf[headerSize+8:], 1)
	binary.LittleEndian.PutUint64(buf[headerSize+16:], 2)

	extra, n, err := ParsePerfInfoExtra(buf, headerSize, version)
	if err != nil {
		t.Fatalf("ParsePerfInfoExtra: %v", err)
	}
	if n != 8+16 {
		t.Errorf("extra length = %d, want 24", n)
	}
	if extra.PEBS == nil || *extra.PEBS != 0xAAAA {
		t.Errorf("PEBS = %v, want 0xAAAA", extra.PEBS)
	}
	if len(extra.Counters) != 2 || extra.Counters[0] != 1 || extra.Counters[1] != 2 {
		t.Errorf("Counters = %v, want [1 2]", extra.Counters)
	}
}
