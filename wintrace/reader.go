// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wintrace

import (
	"io"
	"os"
	"sort"

	"github.com/gopherprof/tracecore/dispatch"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/winrecord"
)

// A File is an open ETW/ETL trace: a sequence of fixed-size buffers, each
// holding a run of time-ordered records for one logical CPU (spec §3,
// §4.3).
type File struct {
	r        io.ReaderAt
	closer   io.Closer
	fileSize int64

	// BufferSize is the logger's configured per-buffer size.
	BufferSize int
	// PtrSize is the trace's pointer width in bytes (4 or 8), needed to
	// decode pointer-sized and dynamic-offset record fields.
	PtrSize int

	buffers []bufferIndex
}

// Open opens the named ETL file using os.Open. bufferSize and ptrSize
// describe the trace's buffer size and pointer width; the core does not
// self-discover these from the header/0 record before indexing; callers
// that don't already know them can obtain both from SniffHeader.
func Open(name string, bufferSize, ptrSize int) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.FileOpen, err, "opening %s", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, traceerr.Wrap(traceerr.FileOpen, err, "stat %s", name)
	}
	tf, err := New(f, info.Size(), bufferSize, ptrSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	tf.closer = f
	return tf, nil
}

// New builds a *File over r, which has fileSize bytes, indexing its
// buffers eagerly.
func New(r io.ReaderAt, fileSize int64, bufferSize, ptrSize int) (*File, error) {
	if ptrSize != 4 && ptrSize != 8 {
		return nil, traceerr.Newf(traceerr.MalformedContainer, "unsupported pointer size %d", ptrSize)
	}
	buffers, err := indexBuffers(r, fileSize, bufferSize)
	if err != nil {
		return nil, err
	}
	return &File{r: r, fileSize: fileSize, BufferSize: bufferSize, PtrSize: ptrSize, buffers: buffers}, nil
}

// Close closes the File, if it was opened with Open.
func (f *File) Close() error {
	if f.closer != nil {
		err := f.closer.Close()
		f.closer = nil
		return err
	}
	return nil
}

// NumBuffers returns the number of buffers indexed in the trace.
func (f *File) NumBuffers() int { return len(f.buffers) }

type rawRecord struct {
	timestamp uint64
	key       dispatch.Key
	body      []byte // the record's user-data region, borrowed from its buffer
}

// Walk reads every record in the trace in global time order (merging each
// CPU's individually time-ordered buffer sequence) and dispatches it
// through reg. It reports progress against listener and stops early,
// returning a Cancelled error, if token is cancelled between records.
func (f *File) Walk(reg *dispatch.Registry, listener progress.Listener, token *progress.Token) error {
	byCPU := make(map[uint16][]bufferIndex)
	for _, b := range f.buffers {
		cpu := b.header.processorIndex()
		byCPU[cpu] = append(byCPU[cpu], b)
	}

	cpus := make([]int, 0, len(byCPU))
	perCPURecords := make(map[int][]rawRecord, len(byCPU))
	for cpu, bufs := range byCPU {
		sort.Slice(bufs, func(i, j int) bool {
			return bufs[i].header.Wnode.SequenceNumber < bufs[j].header.Wnode.SequenceNumber
		})
		cpus = append(cpus, int(cpu))

		var records []rawRecord
		for _, b := range bufs {
			buf, err := readBuffer(f.r, b, f.BufferSize)
			if err != nil {
				return err
			}
			err = walkRecords(buf, bufferHeaderSize, int(b.header.Wnode.CurrentOffset), b.order,
				func(common winrecord.CommonFields, bodyOffset, recordEnd int) error {
					body := make([]byte, recordEnd-bodyOffset)
					copy(body, buf[bodyOffset:recordEnd])
					records = append(records, rawRecord{
						timestamp: common.Timestamp,
						key:       dispatchKey(common),
						body:      body,
					})
					return nil
				})
			if err != nil {
				return err
			}
		}
		perCPURecords[int(cpu)] = records
	}

	cursors := make(map[int]int, len(cpus))
	advance := func(cpu int) (uint64, int, bool) {
		i := cursors[cpu]
		recs := perCPURecords[cpu]
		if i >= len(recs) {
			return 0, 0, false
		}
		cursors[cpu] = i + 1
		return recs[i].timestamp, i, true
	}

	total := 0
	for _, recs := range perCPURecords {
		total += len(recs)
	}
	reporter := progress.NewReporter(listener, total)
	reporter.Start("Reading trace", "")

	m := newMerger(cpus, advance)
	for {
		if token.Cancelled() {
			return traceerr.Newf(traceerr.Cancelled, "trace walk cancelled")
		}
		cpu, idx, ok := m.next()
		if !ok {
			break
		}
		rec := perCPURecords[cpu][idx]
		header := dispatch.CommonHeader{Key: rec.key, Timestamp: rec.timestamp, Raw: rec.body}
		if err := reg.Dispatch(header, rec.body); err != nil {
			return err
		}
		reporter.Advance(1)
	}
	reporter.Finish("")
	return nil
}
