package wintrace

import (
	"io"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// bufferIndex is the position and header of one buffer within the trace,
// discovered during the indexing pass (spec §4.3's "buffer indexing" step,
// analogous to perf's two-pass time-order read in perffile.Records).
type bufferIndex struct {
	order      int // sequential position within the file
	fileOffset int64
	header     bufferHeader
}

// indexBuffers walks the fixed-size buffer sequence of a trace, reading
// each buffer's header without decoding its records, and returns them in
// file order. bufferSize is the logger's configured buffer size (from the
// header/0 EventTraceHeaderEvent record, or a caller-supplied default if
// that record has not yet been seen).
func indexBuffers(r io.ReaderAt, fileSize int64, bufferSize int) ([]bufferIndex, error) {
	if bufferSize <= 0 {
		return nil, traceerr.Newf(traceerr.MalformedContainer, "invalid buffer size %d", bufferSize)
	}
	var out []bufferIndex
	for off, n := int64(0), 0; off+int64(bufferSize) <= fileSize; off, n = off+int64(bufferSize), n+1 {
		sr := io.NewSectionReader(r, off, int64(bufferSize))
		hdr, err := readBufferHeader(sr)
		if err != nil {
			return nil, traceerr.Wrap(traceerr.MalformedContainer, err, "indexing buffer %d", n).WithBuffer(n)
		}
		out = append(out, bufferIndex{order: n, fileOffset: off, header: hdr})
	}
	return out, nil
}

// readBuffer reads one buffer's full contents (header included) from r.
// A compressed buffer is not decompressed; it yields the error
// decompressBuffer returns.
func readBuffer(r io.ReaderAt, b bufferIndex, bufferSize int) ([]byte, error) {
	buf := make([]byte, bufferSize)
	if _, err := r.ReadAt(buf, b.fileOffset); err != nil {
		return nil, traceerr.Wrap(traceerr.Truncated, err, "reading buffer %d", b.order).WithBuffer(b.order)
	}
	if b.header.isCompressed() {
		return decompressBuffer(buf, b.order)
	}
	return buf, nil
}

// decompressBuffer handles a buffer whose header marks it compressed.
// Compressed ETL buffers pack multiple logical buffers' worth of records
// behind one header using a vendor-specific scheme this reader does not
// implement: the buffer is not expanded, and the call always returns an
// UnsupportedTrace error for it.
func decompressBuffer(buf []byte, order int) ([]byte, error) {
	return nil, traceerr.Newf(traceerr.UnsupportedTrace, "compressed buffers are not supported").WithBuffer(order)
}
