// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// Records is a forward-only iterator over the record stream of a
// perf.data file. Call Next until it returns false, then check Err to
// distinguish a clean end-of-stream from a decoding failure.
//
//	rs := file.Records(linuxtrace.RecordsFileOrder)
//	for rs.Next() {
//	    switch r := rs.Record.(type) {
//	    ...
//	    }
//	}
//	if err := rs.Err(); err != nil { ... }
type Records struct {
	f  *File
	sr *bufferedSectionReader

	// order holds the sorted absolute file offsets to visit, for
	// RecordsCausalOrder and RecordsTimeOrder. It is nil for
	// RecordsFileOrder, in which case sr is simply read forward.
	order    []int64
	orderPos int

	err *traceerr.Error

	// Record holds the most recently decoded record. Use a type
	// switch to recover its concrete type.
	Record Record

	// body is the scratch buffer for the current record's payload,
	// reused (and grown) across calls to Next.
	body []byte

	// Reusable storage for the record kinds that are hot enough to
	// be worth not reallocating every call.
	recordMmap   RecordMmap
	recordComm   RecordComm
	recordExit   RecordExit
	recordFork   RecordFork
	recordSample RecordSample
}

// Err returns the first error encountered while iterating, or nil if
// iteration has not failed (including if it simply hasn't reached the
// end of the stream yet).
func (r *Records) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Next decodes the next record into r.Record and reports whether it
// succeeded. It returns false both at a clean end of stream and on
// failure; callers must consult Err to tell the two apart.
//
// The record stored in r.Record is reused by later calls to Next, so
// callers that need to retain it across an iteration must copy it.
func (r *Records) Next() bool {
	if r.err != nil {
		return false
	}

	src, baseOffset, ok := r.nextSource()
	if !ok {
		return false
	}

	var common RecordCommon
	common.Offset = baseOffset

	var hdr recordHeader
	if err := binary.Read(src, binary.LittleEndian, &hdr); err != nil {
		if err != io.EOF {
			r.err = traceerr.Wrap(traceerr.MalformedRecord, err, "reading record header at offset %d", baseOffset).WithBuffer(int(baseOffset))
		}
		return false
	}

	bodyLen := int(hdr.Size) - binary.Size(hdr)
	if bodyLen < 0 {
		r.err = traceerr.Newf(traceerr.MalformedRecord, "record at offset %d has size %d, smaller than its header", baseOffset, hdr.Size).WithBuffer(int(baseOffset))
		return false
	}
	if bodyLen > len(r.body) {
		r.body = make([]byte, bodyLen)
	}
	body := r.body[:bodyLen]
	if _, err := io.ReadFull(src, body); err != nil {
		r.err = traceerr.Wrap(traceerr.Truncated, err, "reading body of record at offset %d (want %d bytes)", baseOffset, bodyLen).WithBuffer(int(baseOffset))
		return false
	}

	cur := newFieldCursor(body, binary.LittleEndian)

	if r.f.sampleIDAll && hdr.Type != RecordTypeSample && hdr.Type < recordTypeUserStart {
		r.decodeTrailer(&cur, &common)
	}

	switch hdr.Type {
	default:
		// RecordTypeRead never appears as a standalone file record;
		// anything else unrecognized is preserved verbatim so
		// callers can still see it went by.
		r.Record = &RecordUnknown{hdr, common, cur.buf}

	case RecordTypeMmap:
		r.Record = r.decodeMmap(&cur, &hdr, &common, false)

	case RecordTypeLost:
		r.Record = r.decodeLost(&cur, &hdr, &common)

	case RecordTypeComm:
		r.Record = r.decodeComm(&cur, &hdr, &common)

	case RecordTypeExit:
		r.Record = r.decodeExit(&cur, &hdr, &common)

	case RecordTypeThrottle:
		r.Record = r.decodeThrottle(&cur, &hdr, &common, true)

	case RecordTypeUnthrottle:
		r.Record = r.decodeThrottle(&cur, &hdr, &common, false)

	case RecordTypeFork:
		r.Record = r.decodeFork(&cur, &hdr, &common)

	case RecordTypeSample:
		r.Record = r.decodeSample(&cur, &hdr)

	case recordTypeMmap2:
		r.Record = r.decodeMmap(&cur, &hdr, &common, true)
	}

	if cur.failure() != nil {
		r.err = cur.failure().WithBuffer(int(baseOffset))
		return false
	}
	if r.err != nil {
		return false
	}
	return true
}

// nextSource returns the byte source for the next record and the
// absolute file offset it starts at. For file-order iteration this is
// simply the shared buffered reader; for causal/time order it opens a
// fresh, unbuffered section at the next sorted offset, since the
// buffered reader only supports streaming forward.
func (r *Records) nextSource() (io.Reader, int64, bool) {
	if r.order == nil {
		pos, _ := r.sr.Seek(0, 1)
		return r.sr, pos + int64(r.f.hdr.Data.Offset), true
	}
	if r.orderPos >= len(r.order) {
		return nil, 0, false
	}
	off := r.order[r.orderPos]
	r.orderPos++
	end := int64(r.f.hdr.Data.Offset) + int64(r.f.hdr.Data.Size)
	return io.NewSectionReader(r.f.r, off, end-off), off, true
}

// getAttr resolves a record's EventAttr ID, latching a descriptive
// error tagged with the offending key if the ID is unknown.
func (r *Records) getAttr(id attrID) *EventAttr {
	if attr, ok := r.f.idToAttr[id]; ok {
		return attr
	}
	r.err = traceerr.Newf(traceerr.MalformedRecord, "record references unknown event attr id %d", id).WithEventKey(fmt.Sprintf("attr:%d", id))
	return nil
}

// decodeTrailer parses the common sample_id structure appended to the
// end of non-sample records when the profile was recorded with
// PERF_SAMPLE_ID_ALL.
func (r *Records) decodeTrailer(cur *fieldCursor, o *RecordCommon) bool {
	if r.f.recordIDOffset == -1 {
		o.ID = 0
	} else if idOff := len(cur.buf) + r.f.recordIDOffset; idOff < 0 || idOff+8 > len(cur.buf) {
		cur.err = traceerr.Newf(traceerr.MalformedRecord, "record body (%d bytes) too short for sample_id trailer at offset %d", len(cur.buf), r.f.recordIDOffset)
		return false
	} else {
		o.ID = attrID(cur.order.Uint64(cur.buf[idOff:]))
	}
	o.EventAttr = r.getAttr(o.ID)
	if o.EventAttr == nil {
		return false
	}

	trailerLen := o.EventAttr.SampleFormat.trailerBytes()
	if trailerLen > len(cur.buf) {
		cur.err = traceerr.Newf(traceerr.MalformedRecord, "sample_id trailer (%d bytes) longer than remaining record body (%d bytes)", trailerLen, len(cur.buf))
		return false
	}
	trailer := newFieldCursor(cur.buf[len(cur.buf)-trailerLen:], cur.order)

	t := o.EventAttr.SampleFormat
	o.Format = t
	o.PID = int(trailer.i32If(t&SampleFormatTID != 0))
	o.TID = int(trailer.i32If(t&SampleFormatTID != 0))
	o.Time = trailer.u64If(t&SampleFormatTime != 0)
	trailer.u64If(t&SampleFormatID != 0)
	o.StreamID = trailer.u64If(t&SampleFormatStreamID != 0)
	o.CPU = trailer.u32If(t&SampleFormatCPU != 0)
	o.Res = trailer.u32If(t&SampleFormatCPU != 0)
	return trailer.failure() == nil
}

func (r *Records) decodeMmap(cur *fieldCursor, hdr *recordHeader, common *RecordCommon, v2 bool) Record {
	o := &r.recordMmap
	o.RecordCommon = *common
	o.Format |= SampleFormatTID

	o.Data = hdr.Misc&recordMiscMmapData != 0

	o.PID, o.TID = int(cur.i32()), int(cur.i32())
	o.Addr, o.Len, o.FileOffset = cur.u64(), cur.u64(), cur.u64()
	if v2 {
		if hdr.Misc&recordMiscMmapBuildID != 0 {
			// build_id_size u8, 3 reserved bytes, build_id[20].
			var raw [24]byte
			cur.bytes(raw[:])
			n := int(raw[0])
			if n > 20 {
				n = 20
			}
			o.BuildID = append(o.BuildID[:0], raw[4:4+n]...)
		} else {
			o.BuildID = nil
			o.Major, o.Minor = cur.u32(), cur.u32()
			o.Ino, o.InoGeneration = cur.u64(), cur.u64()
		}
		o.Prot, o.Flags = cur.u32(), cur.u32()
	}
	o.Filename = cur.cstring()

	return o
}

func (r *Records) decodeLost(cur *fieldCursor, hdr *recordHeader, common *RecordCommon) Record {
	o := &RecordLost{RecordCommon: *common}
	o.Format |= SampleFormatID

	o.ID = attrID(cur.u64())
	o.EventAttr = r.getAttr(o.ID)
	o.NumLost = cur.u64()

	return o
}

func (r *Records) decodeComm(cur *fieldCursor, hdr *recordHeader, common *RecordCommon) Record {
	o := &r.recordComm
	o.RecordCommon = *common
	o.Format |= SampleFormatTID

	o.Exec = hdr.Misc&recordMiscCommExec != 0

	o.PID, o.TID = int(cur.i32()), int(cur.i32())
	o.Comm = cur.cstring()

	return o
}

func (r *Records) decodeExit(cur *fieldCursor, hdr *recordHeader, common *RecordCommon) Record {
	o := &r.recordExit
	o.RecordCommon = *common
	o.Format |= SampleFormatTID | SampleFormatTime

	o.PID, o.PPID = int(cur.i32()), int(cur.i32())
	o.TID, o.PTID = int(cur.i32()), int(cur.i32())
	o.Time = cur.u64()

	return o
}

func (r *Records) decodeThrottle(cur *fieldCursor, hdr *recordHeader, common *RecordCommon, enable bool) Record {
	o := &RecordThrottle{RecordCommon: *common, Enable: enable}
	o.Format |= SampleFormatTime | SampleFormatID | SampleFormatStreamID

	o.Time = cur.u64()
	// Throttle records always carry an attr ID, even in profiles
	// that don't otherwise record sample IDs; fall back to the
	// default event rather than failing the whole trace.
	id := attrID(cur.u64())
	if r.f.idToAttr[id] == nil && r.f.idToAttr[0] != nil {
		o.EventAttr = r.f.idToAttr[0]
	} else {
		o.EventAttr = r.getAttr(id)
	}
	o.StreamID = cur.u64()

	return o
}

func (r *Records) decodeFork(cur *fieldCursor, hdr *recordHeader, common *RecordCommon) Record {
	o := &r.recordFork
	o.RecordCommon = *common
	o.Format |= SampleFormatTID | SampleFormatTime

	o.PID, o.PPID = int(cur.i32()), int(cur.i32())
	o.TID, o.PTID = int(cur.i32()), int(cur.i32())
	o.Time = cur.u64()

	return o
}

func (r *Records) decodeSample(cur *fieldCursor, hdr *recordHeader) Record {
	o := &r.recordSample

	if r.f.sampleIDOffset == -1 {
		o.ID = 0
	} else if r.f.sampleIDOffset >= 0 && r.f.sampleIDOffset+8 <= len(cur.buf) {
		o.ID = attrID(cur.order.Uint64(cur.buf[r.f.sampleIDOffset:]))
	} else {
		cur.err = traceerr.Newf(traceerr.MalformedRecord, "sample event id at offset %d falls outside the %d-byte record body", r.f.sampleIDOffset, len(cur.buf))
		return nil
	}
	o.EventAttr = r.getAttr(o.ID)
	if o.EventAttr == nil {
		return nil
	}

	o.CPUMode = CPUMode(hdr.Misc & recordMiscCPUModeMask)
	o.ExactIP = hdr.Misc&recordMiscExactIP != 0

	t := o.EventAttr.SampleFormat
	o.Format = t
	cur.u64If(t&SampleFormatIdentifier != 0)
	o.IP = cur.u64If(t&SampleFormatIP != 0)
	o.PID = int(cur.i32If(t&SampleFormatTID != 0))
	o.TID = int(cur.i32If(t&SampleFormatTID != 0))
	o.Time = cur.u64If(t&SampleFormatTime != 0)
	o.Addr = cur.u64If(t&SampleFormatAddr != 0)
	cur.u64If(t&SampleFormatID != 0)
	o.StreamID = cur.u64If(t&SampleFormatStreamID != 0)
	o.CPU = cur.u32If(t&SampleFormatCPU != 0)
	o.Res = cur.u32If(t&SampleFormatCPU != 0)
	o.Period = cur.u64If(t&SampleFormatPeriod != 0)

	if t&SampleFormatRead != 0 {
		r.decodeReadFormat(cur, o.EventAttr.ReadFormat, &o.SampleRead)
	}

	if t&SampleFormatCallchain != 0 {
		n := int(cur.u64())
		if o.Callchain == nil || cap(o.Callchain) < n {
			o.Callchain = make([]uint64, n)
		} else {
			o.Callchain = o.Callchain[:n]
		}
		cur.u64s(o.Callchain)
	} else {
		o.Callchain = nil
	}

	rawSize := cur.u32If(t&SampleFormatRaw != 0)
	cur.skip(int(rawSize))

	if t&SampleFormatBranchStack != 0 {
		n := int(cur.u64())
		if o.BranchStack == nil || cap(o.BranchStack) < n {
			o.BranchStack = make([]BranchRecord, n)
		} else {
			o.BranchStack = o.BranchStack[:n]
		}
		for i := range o.BranchStack {
			o.BranchStack[i].From = cur.u64()
			o.BranchStack[i].To = cur.u64()
			o.BranchStack[i].Flags = BranchFlags(cur.u64())
		}
	}

	if t&SampleFormatRegsUser != 0 {
		o.RegsUserABI = SampleRegsABI(cur.u64())
		n := weight(o.EventAttr.SampleRegsUser)
		if o.RegsUser == nil || cap(o.RegsUser) < n {
			o.RegsUser = make([]uint64, n)
		} else {
			o.RegsUser = o.RegsUser[:n]
		}
		cur.u64s(o.RegsUser)
	}

	if t&SampleFormatStackUser != 0 {
		n := int(cur.u64())
		if o.StackUser == nil || cap(o.StackUser) < n {
			o.StackUser = make([]byte, n)
		} else {
			o.StackUser = o.StackUser[:n]
		}
		cur.bytes(o.StackUser)
		o.StackUserDynSize = cur.u64()
	} else {
		o.StackUser = nil
		o.StackUserDynSize = 0
	}

	o.Weight = cur.u64If(t&SampleFormatWeight != 0)

	if t&SampleFormatDataSrc != 0 {
		o.DataSrc = decodeDataSrc(cur.u64())
	}

	transaction := cur.u64If(t&SampleFormatTransaction != 0)
	o.Transaction = Transaction(transaction & 0xffffffff)
	o.AbortCode = uint32(transaction >> 32)

	return o
}

func (r *Records) decodeReadFormat(cur *fieldCursor, f ReadFormat, out *[]Count) {
	n := 1
	if f&ReadFormatGroup != 0 {
		n = int(cur.u64())
	}

	if *out == nil || cap(*out) < n {
		*out = make([]Count, n)
	} else {
		*out = (*out)[:n]
	}

	if f&ReadFormatGroup == 0 {
		o := &(*out)[0]
		o.Value = cur.u64()
		o.TimeEnabled = cur.u64If(f&ReadFormatTotalTimeEnabled != 0)
		o.TimeRunning = cur.u64If(f&ReadFormatTotalTimeRunning != 0)
		if f&ReadFormatID != 0 {
			o.EventAttr = r.getAttr(attrID(cur.u64()))
		} else {
			o.EventAttr = nil
		}
		return
	}
	for i := range *out {
		o := &(*out)[i]
		o.TimeEnabled = cur.u64If(f&ReadFormatTotalTimeEnabled != 0)
		o.TimeRunning = cur.u64If(f&ReadFormatTotalTimeRunning != 0)
		o.Value = cur.u64()
		if f&ReadFormatID != 0 {
			o.EventAttr = r.getAttr(attrID(cur.u64()))
		} else {
			o.EventAttr = nil
		}
	}
}

// decodeDataSrc unpacks the bitfields of perf_mem_data_src: which kind
// of memory operation a sample's address refers to, the cache level it
// was served from, whether it hit or missed, and so on.
func decodeDataSrc(d uint64) (out DataSrc) {
	op := (d >> 0) & 0x1f
	lvl := (d >> 5) & 0x3fff
	snoop := (d >> 19) & 0x1f
	lock := (d >> 24) & 0x3
	dtlb := (d >> 26) & 0x7f

	if op&0x1 != 0 {
		out.Op = DataSrcOpNA
	} else {
		out.Op = DataSrcOp(op >> 1)
	}

	if lvl&0x1 != 0 {
		out.Miss, out.Level = false, DataSrcLevelNA
	} else {
		out.Miss = (lvl & 0x4) != 0
		out.Level = DataSrcLevel(lvl >> 3)
	}

	if snoop&0x1 != 0 {
		out.Snoop = DataSrcSnoopNA
	} else {
		out.Snoop = DataSrcSnoop(snoop >> 1)
	}

	if lock&0x1 != 0 {
		out.Locked = DataSrcLockNA
	} else if lock&0x02 != 0 {
		out.Locked = DataSrcLockLocked
	} else {
		out.Locked = DataSrcLockUnlocked
	}

	if dtlb&0x1 != 0 {
		out.TLB = DataSrcTLBNA
	} else {
		out.TLB = DataSrcTLB(dtlb >> 1)
	}
	return
}

// weight returns the population count of x: the number of registers
// named by a PERF_SAMPLE_REGS_USER/INTR mask.
func weight(x uint64) int {
	x -= (x >> 1) & 0x5555555555555555
	x = (x & 0x3333333333333333) + ((x >> 2) & 0x3333333333333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f0f0f0f0f
	return int((x * 0x0101010101010101) >> 56)
}
