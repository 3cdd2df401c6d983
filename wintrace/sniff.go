package wintrace

import (
	"encoding/binary"
	"io"

	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/winrecord"
)

// sniffPrefix is how much of the first buffer SniffHeader reads to find
// the header/0 record; real traces put it first in the first buffer, well
// within this many bytes of buffer-header overhead plus one record.
const sniffPrefix = 4096

// SniffHeader reads just enough of r to learn the two parameters Open
// needs before it can index the rest of the file: the logger's configured
// buffer size (from the first buffer's WNODE header, which is laid out
// identically regardless of pointer width) and the trace's pointer size
// (from the header/0 record's own PointerSize field, which — per
// winrecord.ParseEventTraceHeaderV2's doc comment — sits at a fixed offset
// that precedes the pointer-width-dependent part of that record, so it
// can always be read with a throwaway ptrSize of 8).
func SniffHeader(r io.ReaderAt) (bufferSize, ptrSize int, err error) {
	prefix := make([]byte, sniffPrefix)
	n, rerr := r.ReadAt(prefix, 0)
	if n < bufferHeaderSize {
		if rerr != nil && rerr != io.EOF {
			return 0, 0, traceerr.Wrap(traceerr.FileOpen, rerr, "reading trace prefix")
		}
		return 0, 0, traceerr.Newf(traceerr.Truncated, "trace shorter than one buffer header")
	}
	prefix = prefix[:n]

	var hdr bufferHeader
	if err := binary.Read(&sliceReader{prefix[:bufferHeaderSize]}, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, traceerr.Wrap(traceerr.MalformedContainer, err, "decoding first buffer header")
	}
	bufferSize = int(hdr.Wnode.BufferSize)

	body := prefix[bufferHeaderSize:]
	common, bodyOffset, _, err := winrecord.ParseHeader(body, 8)
	if err != nil {
		return 0, 0, traceerr.Wrap(traceerr.MalformedRecord, err, "decoding header/0 record")
	}
	if common.Group != winrecord.GroupHeader || uint16(common.Type) != winrecord.TypeHeader {
		return 0, 0, traceerr.Newf(traceerr.UnsupportedTrace, "first record is not the trace header")
	}
	if bodyOffset > len(body) {
		return 0, 0, traceerr.Newf(traceerr.Truncated, "header/0 record runs past sniffed prefix")
	}
	ev, err := winrecord.ParseEventTraceHeaderV2(body[bodyOffset:], 8)
	if err != nil {
		return 0, 0, traceerr.Wrap(traceerr.MalformedRecord, err, "decoding trace header fields")
	}
	ptrSize = int(ev.PointerSize)
	if ptrSize != 4 && ptrSize != 8 {
		return 0, 0, traceerr.Newf(traceerr.MalformedContainer, "unsupported pointer size %d", ptrSize)
	}
	return bufferSize, ptrSize, nil
}

// sliceReader adapts a byte slice to io.Reader for binary.Read without
// pulling in bytes.Reader's extra seek/unread surface this one call
// doesn't need.
type sliceReader struct{ b []byte }

func (s *sliceReader) Read(p []byte) (int, error) {
	if len(s.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.b)
	s.b = s.b[n:]
	return n, nil
}
