package wintrace

import (
	"github.com/gopherprof/tracecore/dispatch"
	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/winrecord"
)

// recordAlignment is the byte boundary every record starts on within a
// buffer (spec §4.3).
const recordAlignment = 8

func alignUp(n int) int {
	return (n + recordAlignment - 1) &^ (recordAlignment - 1)
}

// walkRecords invokes fn for each record in the portion of buf from
// recordsStart up to the buffer's CurrentOffset (the byte offset one past
// the last valid record). It stops at the first error.
func walkRecords(buf []byte, recordsStart int, currentOffset int, order int, fn func(common winrecord.CommonFields, bodyOffset, recordEnd int) error) error {
	off := recordsStart
	for off < currentOffset {
		if off+4 > len(buf) {
			return traceerr.Newf(traceerr.Truncated, "buffer %d: record marker runs past buffer end", order).WithBuffer(order)
		}
		common, bodyOffset, recordSize, err := winrecord.ParseHeader(buf[off:], 8)
		if err != nil {
			return traceerr.Wrap(traceerr.MalformedRecord, err, "buffer %d: decoding record at offset %d", order, off).WithBuffer(order)
		}
		if recordSize < bodyOffset {
			return traceerr.Newf(traceerr.MalformedRecord, "buffer %d: record at offset %d declares size %d smaller than its header", order, off, recordSize).WithBuffer(order)
		}
		recordEnd := off + recordSize
		if recordEnd > currentOffset {
			return traceerr.Newf(traceerr.MalformedRecord, "buffer %d: record at offset %d overruns buffer", order, off).WithBuffer(order)
		}
		if err := fn(common, off+bodyOffset, recordEnd); err != nil {
			return err
		}
		off = alignUp(recordEnd)
	}
	return nil
}

// classicKey builds the dispatch.Key for a classic (group,type,version)
// record.
func classicKey(fields winrecord.CommonFields) dispatch.Key {
	return dispatch.ClassicKey(fields.Group, fields.Type, fields.Version)
}

// modernKey builds the dispatch.Key for a guid-based record.
func modernKey(fields winrecord.CommonFields) dispatch.Key {
	hi := uint64(fields.GUID.Data1)<<32 | uint64(fields.GUID.Data2)<<16 | uint64(fields.GUID.Data3)
	var lo uint64
	for _, b := range fields.GUID.Data4 {
		lo = lo<<8 | uint64(b)
	}
	return dispatch.ModernKey(hi, lo, fields.EventID, fields.Version)
}

// dispatchKey picks the classic or modern key encoding for fields,
// depending on which trace-header shape produced it.
func dispatchKey(fields winrecord.CommonFields) dispatch.Key {
	switch fields.Kind {
	case winrecord.HeaderSystem32, winrecord.HeaderSystem64, winrecord.HeaderCompact32, winrecord.HeaderCompact64,
		winrecord.HeaderPerfInfo32, winrecord.HeaderPerfInfo64:
		return classicKey(fields)
	default:
		return modernKey(fields)
	}
}
