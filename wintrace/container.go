// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wintrace reads Windows ETW/ETL trace files: a sequence of
// fixed-size buffers, each opening with a WNODE_HEADER/WMI_BUFFER_HEADER
// pair, holding a run of 8-byte-aligned records (spec §3, §4.3).
package wintrace

import (
	"encoding/binary"
	"io"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// wnodeHeader is the on-disk WNODE_HEADER that opens every ETW buffer.
// See _examples/original_source/src/etl/parser/buffer.hpp.
type wnodeHeader struct {
	BufferSize     uint32
	SavedOffset    uint32
	CurrentOffset  uint32
	ReferenceCount int32
	Timestamp      int64
	SequenceNumber int64
	Clock          uint64 // union of {type:3, frequency:61} and a raw clock value
	ClientContext  uint32 // etw_buffer_context: processor_index/number + alignment + logger_id
	State          uint32
}

const wnodeHeaderSize = 48

// bufferHeader is the on-disk WMI_BUFFER_HEADER: a wnodeHeader plus
// buffer-format fields and a reference-time pair.
type bufferHeader struct {
	Wnode          wnodeHeader
	Offset         uint32
	BufferFlag     uint16
	BufferType     uint16
	StartTime      int64
	StartPerfClock int64
}

const bufferHeaderSize = wnodeHeaderSize + 4 + 2 + 2 + 8 + 8

// Buffer-flag bits (buffer_header.hpp): compressed buffers carry one or
// more records whose total size differs from CurrentOffset.
const bufferFlagCompressed = 0x1

func readBufferHeader(r io.Reader) (bufferHeader, error) {
	var h bufferHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, wrapTruncated(err)
	}
	return h, nil
}

func wrapTruncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return traceerr.Wrap(traceerr.Truncated, err, "truncated buffer header")
	}
	return traceerr.Wrap(traceerr.MalformedContainer, err, "reading buffer header")
}

// processorIndex extracts the logical CPU number a buffer was captured on
// from its client-context field. Per buffer.hpp this is either a 16-bit
// processor_index (for >64 CPU systems) or an 8-bit processor_number in
// the low byte, depending on logger configuration this reader does not
// distinguish; both are exposed as the low 16 bits in practice.
func (h bufferHeader) processorIndex() uint16 {
	return uint16(h.Wnode.ClientContext & 0xFFFF)
}

func (h bufferHeader) loggerID() uint16 {
	return uint16(h.Wnode.ClientContext >> 16)
}

func (h bufferHeader) isCompressed() bool {
	return h.BufferFlag&bufferFlagCompressed != 0
}
