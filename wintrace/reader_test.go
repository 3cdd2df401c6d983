package wintrace

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gopherprof/tracecore/winrecord"
)

// buildTestBuffer constructs one fixed-size buffer with a wnodeHeader
// (sequence number seq, CPU cpu), a WMI buffer header, and a single
// compact32 record with the given timestamp.
func buildTestBuffer(size int, cpu uint16, seq int64, timestamp uint64) []byte {
	buf := make([]byte, size)
	w := bytes.NewBuffer(nil)
	binary.Write(w, binary.LittleEndian, uint32(size))          // BufferSize
	binary.Write(w, binary.LittleEndian, uint32(bufferHeaderSize)) // SavedOffset
	currentOffset := bufferHeaderSize + 24 // one compact record, no alignment padding needed
	binary.Write(w, binary.LittleEndian, uint32(currentOffset)) // CurrentOffset
	binary.Write(w, binary.LittleEndian, int32(1))              // ReferenceCount
	binary.Write(w, binary.LittleEndian, int64(0))              // Timestamp
	binary.Write(w, binary.LittleEndian, seq)                   // SequenceNumber
	binary.Write(w, binary.LittleEndian, uint64(0))              // Clock
	binary.Write(w, binary.LittleEndian, uint32(cpu))            // ClientContext (processor index in low 16 bits)
	binary.Write(w, binary.LittleEndian, uint32(0))              // State
	binary.Write(w, binary.LittleEndian, uint32(0))              // Offset
	binary.Write(w, binary.LittleEndian, uint16(0))              // BufferFlag
	binary.Write(w, binary.LittleEndian, uint16(0))              // BufferType
	binary.Write(w, binary.LittleEndian, int64(0))               // StartTime
	binary.Write(w, binary.LittleEndian, int64(0))               // StartPerfClock
	copy(buf, w.Bytes())

	rec := buf[bufferHeaderSize:]
	binary.LittleEndian.PutUint16(rec[0:], 1) // version
	rec[2] = byte(winrecord.HeaderCompact32)
	rec[3] = 0xC0 // trace-header + event-trace marker flags
	binary.LittleEndian.PutUint16(rec[4:], 24) // packet.size
	rec[6] = 7                                 // packet.type
	rec[7] = 3                                 // packet.group
	binary.LittleEndian.PutUint32(rec[8:], 55)  // thread_id
	binary.LittleEndian.PutUint32(rec[12:], 66) // process_id
	binary.LittleEndian.PutUint64(rec[16:], timestamp)

	return buf
}

func TestIndexAndWalkSingleCPU(t *testing.T) {
	const bufSize = 512
	b0 := buildTestBuffer(bufSize, 0, 1, 100)
	b1 := buildTestBuffer(bufSize, 0, 2, 200)
	var file bytes.Buffer
	file.Write(b0)
	file.Write(b1)

	r := bytes.NewReader(file.Bytes())
	buffers, err := indexBuffers(r, int64(file.Len()), bufSize)
	if err != nil {
		t.Fatalf("indexBuffers: %v", err)
	}
	if len(buffers) != 2 {
		t.Fatalf("got %d buffers, want 2", len(buffers))
	}
	if buffers[0].header.Wnode.SequenceNumber != 1 || buffers[1].header.Wnode.SequenceNumber != 2 {
		t.Errorf("unexpected sequence numbers: %d, %d", buffers[0].header.Wnode.SequenceNumber, buffers[1].header.Wnode.SequenceNumber)
	}

	var timestamps []uint64
	for _, b := range buffers {
		buf, err := readBuffer(r, b, bufSize)
		if err != nil {
			t.Fatalf("readBuffer: %v", err)
		}
		err = walkRecords(buf, bufferHeaderSize, int(b.header.Wnode.CurrentOffset), b.order,
			func(common winrecord.CommonFields, bodyOffset, recordEnd int) error {
				timestamps = append(timestamps, common.Timestamp)
				return nil
			})
		if err != nil {
			t.Fatalf("walkRecords: %v", err)
		}
	}
	if len(timestamps) != 2 || timestamps[0] != 100 || timestamps[1] != 200 {
		t.Errorf("timestamps = %v, want [100 200]", timestamps)
	}
}
