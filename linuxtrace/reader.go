// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"encoding/binary"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// File is an open Linux perf.data trace: a header, a table of event
// attributes, an optional block of metadata features, and a stream of
// records. Records method returns an iterator over the latter; the
// rest is exposed directly as Meta and Events.
type File struct {
	// Meta holds the metadata feature sections present in the file
	// (hostname, kernel release, CPU topology, and so on). Any field
	// left at its zero value was absent from this trace.
	Meta FileMeta

	// Events lists every event attribute table entry in the file, in
	// file order.
	Events []*EventAttr

	r      io.ReaderAt
	closer io.Closer
	hdr    fileHeader

	attrs    []fileAttr
	idToAttr map[attrID]*EventAttr

	sampleIDOffset int // byte offset of the attr ID within a sample record, or -1

	sampleIDAll    bool // whether non-sample records carry a sample_id trailer
	recordIDOffset int  // byte offset (from the end) of the attr ID within that trailer, or -1
}

// New opens a perf.data container already available through r and
// validates its header, event attribute table, and metadata section.
// The caller must keep r open for as long as the returned *File is in
// use.
func New(r io.ReaderAt) (*File, error) {
	file := &File{r: r, Events: make([]*EventAttr, 0)}

	sr := io.NewSectionReader(r, 0, 1024)
	if err := binary.Read(sr, binary.LittleEndian, &file.hdr); err != nil {
		return nil, traceerr.Wrap(traceerr.Truncated, err, "reading perf.data file header")
	}
	switch magic := string(file.hdr.Magic[:]); magic {
	case "PERFILE2":
		// Version 2, little endian: the only layout this reader speaks.
	case "2ELIFREP":
		return nil, traceerr.Newf(traceerr.UnsupportedTrace, "big-endian perf.data files are not supported")
	case "PERFFILE":
		return nil, traceerr.Newf(traceerr.UnsupportedTrace, "version 1 perf.data files are not supported")
	default:
		return nil, traceerr.Newf(traceerr.MalformedContainer, "unrecognized perf.data magic %q", magic)
	}
	if file.hdr.Size != uint64(binary.Size(&file.hdr)) {
		return nil, traceerr.Newf(traceerr.MalformedContainer, "header claims size %d, expected %d", file.hdr.Size, binary.Size(&file.hdr))
	}

	// hdr.Data.Size is the last field perf writes when finishing a
	// capture, so a zero value means the recorder never finished.
	if file.hdr.Data.Size == 0 {
		return nil, traceerr.Newf(traceerr.Truncated, "perf.data file has an empty data section; recording may not have terminated cleanly")
	}

	if file.hdr.AttrSize == 0 {
		return nil, traceerr.Newf(traceerr.MalformedContainer, "header declares a zero-size event attr record")
	}
	nAttrs := int(file.hdr.Attrs.Size / file.hdr.AttrSize)
	switch {
	case nAttrs == 0:
		return nil, traceerr.Newf(traceerr.MalformedContainer, "file declares no event types")
	case nAttrs > 64*1024:
		return nil, traceerr.Newf(traceerr.MalformedContainer, "file declares %d event types, which exceeds the supported limit", nAttrs)
	}
	file.attrs = make([]fileAttr, nAttrs)
	attrSR := file.hdr.Attrs.sectionReader(r)
	for i := 0; i < nAttrs; i++ {
		if err := decodeEventAttrRecord(attrSR, &file.attrs[i]); err != nil {
			return nil, traceerr.Wrap(traceerr.MalformedContainer, err, "reading event attr record %d of %d", i, nAttrs).WithBuffer(i)
		}
		file.Events = append(file.Events, &file.attrs[i].Attr)
	}

	file.idToAttr = make(map[attrID]*EventAttr)
	for i, attr := range file.attrs {
		var ids []attrID
		if err := decodeSectionSlice(attr.IDs.sectionReader(r), &ids); err != nil {
			return nil, traceerr.Wrap(traceerr.MalformedContainer, err, "reading id list for event attr %d", i).WithBuffer(i)
		}
		for _, id := range ids {
			file.idToAttr[id] = &file.attrs[i].Attr
		}
	}

	if err := file.checkSampleLayoutConsistency(); err != nil {
		return nil, err
	}

	if err := file.loadFeatures(); err != nil {
		return nil, err
	}

	return file, nil
}

// checkSampleLayoutConsistency derives the byte offsets at which
// sample and sample_id-trailer records carry their event attr ID, and
// confirms every event attr in the file agrees on that layout. This
// reader only ever picks one event attr per record by ID, so a file
// whose events disagree about where that ID lives cannot be decoded
// correctly.
func (file *File) checkSampleLayoutConsistency() error {
	first := &file.attrs[0].Attr
	file.sampleIDOffset = first.SampleFormat.sampleIDOffset()
	file.recordIDOffset = first.SampleFormat.recordIDOffset()
	file.sampleIDAll = first.Flags&EventFlagSampleIDAll != 0

	if len(file.attrs) <= 1 {
		return nil
	}
	if len(file.idToAttr) == 0 {
		return traceerr.Newf(traceerr.MalformedContainer, "file declares multiple event attrs but no per-event id table")
	}
	for i, attr := range file.attrs {
		if x := attr.Attr.SampleFormat.sampleIDOffset(); x == -1 {
			return traceerr.Newf(traceerr.MalformedContainer, "event attr %d has multiple events but no sample id field", i)
		} else if file.sampleIDOffset != x {
			return traceerr.Newf(traceerr.MalformedContainer, "event attrs disagree on sample id offset (%d vs %d)", file.sampleIDOffset, x)
		}

		if x := attr.Attr.SampleFormat.recordIDOffset(); x == -1 {
			return traceerr.Newf(traceerr.MalformedContainer, "event attr %d has multiple events but no record id field", i)
		} else if file.recordIDOffset != x {
			return traceerr.Newf(traceerr.MalformedContainer, "event attrs disagree on record id offset (%d vs %d)", file.recordIDOffset, x)
		}

		if idAll := attr.Attr.Flags&EventFlagSampleIDAll != 0; file.sampleIDAll != idAll {
			return traceerr.Newf(traceerr.MalformedContainer, "event attrs disagree on whether every record carries a sample id")
		}

		if first.ReadFormat != attr.Attr.ReadFormat {
			return traceerr.Newf(traceerr.MalformedContainer, "event attrs disagree on read format")
		}
	}
	if first.SampleFormat&SampleFormatRead != 0 && first.ReadFormat&ReadFormatID == 0 {
		return traceerr.Newf(traceerr.MalformedContainer, "samples request per-event reads but the read format carries no event id")
	}
	return nil
}

// loadFeatures reads the bitmap of optional metadata sections declared
// in the file header and parses each one present into file.Meta.
func (file *File) loadFeatures() error {
	sr := io.NewSectionReader(file.r, int64(file.hdr.Data.Offset+file.hdr.Data.Size), int64(numFeatureBits*binary.Size(fileSection{})))
	for bit := feature(0); bit < feature(numFeatureBits); bit++ {
		if !file.hdr.hasFeature(bit) {
			continue
		}
		var sec fileSection
		if err := binary.Read(sr, binary.LittleEndian, &sec); err != nil {
			return traceerr.Wrap(traceerr.MalformedContainer, err, "reading feature section descriptor %d", bit)
		}
		if err := file.Meta.parse(bit, sec, file.r); err != nil {
			return traceerr.Wrap(traceerr.MalformedContainer, err, "parsing feature section %d", bit)
		}
	}
	return nil
}

// Open opens the named perf.data file and parses its header.
//
// The caller must call Close on the returned File when done with it.
func Open(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.FileOpen, err, "opening %s", name)
	}
	file, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	file.closer = f
	return file, nil
}

// decodeEventAttrRecord reads one versioned perf_event_attr record
// (the ABI has grown fields release over release, but the file only
// records how many bytes the writer used) and normalizes it into fa.
func decodeEventAttrRecord(sr *io.SectionReader, fa *fileAttr) error {
	var attr eventAttrVN
	if err := binary.Read(sr, binary.LittleEndian, &attr.eventAttrV0); err != nil {
		return traceerr.Wrap(traceerr.Truncated, err, "reading event attr common prefix")
	}
	switch {
	case attr.Size == 0:
		// No size recorded means the writer predates versioning; the
		// common prefix above is the entire ABI v0 struct.
		attr.Size = 64
	case attr.Size > uint32(binary.Size(&attr)):
		return traceerr.Newf(traceerr.UnsupportedTrace, "event attr declares size %d, larger than any known perf_event_attr version", attr.Size)
	default:
		left := int(attr.Size) - binary.Size(&attr.eventAttrV0)
		fields := reflect.ValueOf(&attr).Elem()
		for i := 1; i < fields.NumField() && left > 0; i++ {
			field := fields.Field(i).Addr().Interface()
			if err := binary.Read(sr, binary.LittleEndian, field); err != nil {
				return traceerr.Wrap(traceerr.Truncated, err, "reading event attr field %d", i)
			}
			left -= binary.Size(field)
		}
	}

	eg := EventGeneric{Type: attr.Type, ID: attr.Config, Config: []uint64{attr.BPAddrOrConfig1, attr.BPLenOrConfig2}}
	if attr.Type == EventTypeBreakpoint {
		eg.ID = uint64(attr.BPType)
	}
	fa.Attr.Event = eg.Decode()
	if attr.Flags&EventFlagFreq == 0 {
		fa.Attr.SamplePeriod = attr.SamplePeriodOrFreq
	} else {
		fa.Attr.SampleFreq = attr.SamplePeriodOrFreq
	}
	fa.Attr.SampleFormat = attr.SampleFormat
	fa.Attr.ReadFormat = attr.ReadFormat
	fa.Attr.Flags = attr.Flags &^ eventFlagPreciseMask
	fa.Attr.Precise = EventPrecision((attr.Flags & eventFlagPreciseMask) >> eventFlagPreciseShift)
	if attr.Flags&EventFlagWakeupWatermark == 0 {
		fa.Attr.WakeupEvents = attr.WakeupEventsOrWatermark
	} else {
		fa.Attr.WakeupWatermark = attr.WakeupEventsOrWatermark
	}
	fa.Attr.SampleRegsUser = attr.SampleRegsUser
	fa.Attr.SampleStackUser = attr.SampleStackUser
	fa.Attr.AuxWatermark = attr.AuxWatermark

	if err := binary.Read(sr, binary.LittleEndian, &fa.IDs); err != nil {
		return traceerr.Wrap(traceerr.Truncated, err, "reading event attr id-list descriptor")
	}
	return nil
}

// Close releases the file's underlying reader if it was opened with
// Open. Files constructed directly with New are left untouched.
func (f *File) Close() error {
	var err error
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}
	return err
}

// decodeSectionSlice reads a whole section as a slice of fixed-size
// elements. v must be a pointer to a slice type; the section's byte
// length must be an exact multiple of that type's encoded size.
func decodeSectionSlice(sr *io.SectionReader, v interface{}) error {
	vt := reflect.TypeOf(v)
	if vt.Kind() != reflect.Ptr || vt.Elem().Kind() != reflect.Slice {
		panic("decodeSectionSlice: v must be a pointer to a slice")
	}
	elemSize := binary.Size(reflect.Zero(vt.Elem().Elem()).Interface())
	if sr.Size()%int64(elemSize) != 0 {
		return traceerr.Newf(traceerr.MalformedContainer, "section size %d is not a multiple of element size %d", sr.Size(), elemSize)
	}
	count := int(sr.Size() / int64(elemSize))

	reflect.ValueOf(v).Elem().Set(reflect.MakeSlice(vt.Elem(), count, count))
	if err := binary.Read(sr, binary.LittleEndian, v); err != nil {
		return traceerr.Wrap(traceerr.Truncated, err, "reading section body")
	}
	return nil
}

//go:generate stringer -type=RecordsOrder

// RecordsOrder selects the order in which Records walks a file's
// record stream.
type RecordsOrder int

const (
	// RecordsFileOrder streams records in on-disk order. This is the
	// cheapest option: it requires no buffering beyond one record at
	// a time, but records may not be in timestamp or even causal
	// order.
	RecordsFileOrder RecordsOrder = iota

	// RecordsCausalOrder guarantees that any two non-sample records
	// come out in timestamp order, but makes no promise between two
	// RecordSamples. Currently implemented identically to
	// RecordsTimeOrder.
	RecordsCausalOrder

	// RecordsTimeOrder guarantees every record comes out in
	// timestamp order. This is the most expensive option: it makes
	// two passes over the file, the first to index every record's
	// offset and timestamp, the second to revisit them by seeking
	// directly to each offset in sorted order.
	RecordsTimeOrder
)

// Records returns an iterator over the file's record stream in the
// requested order. Prefer RecordsFileOrder unless the caller actually
// needs records delivered in time order, since causal/time ordering
// requires a full extra pass over the file.
func (f *File) Records(order RecordsOrder) *Records {
	if order == RecordsCausalOrder || order == RecordsTimeOrder {
		indexPass := &Records{f: f, sr: newBufferedSectionReader(f.hdr.Data.sectionReader(f.r))}
		var offsets []int64
		var timestamps []uint64
		for indexPass.Next() {
			c := indexPass.Record.Common()
			offsets = append(offsets, c.Offset)
			timestamps = append(timestamps, c.Time)
		}
		if err := indexPass.Err(); err != nil {
			return &Records{err: err.(*traceerr.Error)}
		}
		sort.Stable(&timeSorter{offsets, timestamps})
		return &Records{f: f, order: offsets}
	}

	return &Records{f: f, sr: newBufferedSectionReader(f.hdr.Data.sectionReader(f.r))}
}

// timeSorter sorts parallel offset/timestamp slices by timestamp,
// carrying the offsets along so the second pass knows where to seek.
type timeSorter struct {
	pos []int64
	ts  []uint64
}

func (s *timeSorter) Len() int { return len(s.pos) }

func (s *timeSorter) Less(i, j int) bool { return s.ts[i] < s.ts[j] }

func (s *timeSorter) Swap(i, j int) {
	s.pos[i], s.pos[j] = s.pos[j], s.pos[i]
	s.ts[i], s.ts[j] = s.ts[j], s.ts[i]
}
