// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"io"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// bufferedSectionReader is a forward-only buffered reader over an
// io.SectionReader that also tracks its own absolute file position, so
// callers can stamp each record with the offset it was read from
// without an extra Seek/Tell round trip per record.
//
// It deliberately implements only enough of io.ReadSeeker to support
// that one pattern (Seek(0, io.SeekCurrent) to read the position back);
// anything else panics rather than silently doing the wrong thing.
type bufferedSectionReader struct {
	buf  []byte
	rd   *io.SectionReader
	r, w int // read/write cursors into buf
	err  error
	pos  int64 // absolute offset within rd of the next unread byte
}

const bufferedSectionReaderSize = 16 << 10

func newBufferedSectionReader(rd *io.SectionReader) *bufferedSectionReader {
	pos, err := rd.Seek(0, io.SeekCurrent)
	if err != nil {
		panic(err)
	}
	return &bufferedSectionReader{
		buf: make([]byte, bufferedSectionReaderSize),
		rd:  rd,
		pos: pos,
	}
}

func (b *bufferedSectionReader) readErr() error {
	err := b.err
	b.err = nil
	return err
}

func (b *bufferedSectionReader) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekCurrent {
		panic("bufferedSectionReader: only Seek(0, io.SeekCurrent) is supported")
	}
	return b.pos, nil
}

func (b *bufferedSectionReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, b.readErr()
	}
	if b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}
		if len(p) >= len(b.buf) {
			// Read straight into the caller's buffer rather than
			// bouncing through ours.
			n, b.err = b.rd.Read(p)
			if n < 0 {
				panic(traceerr.Newf(traceerr.MalformedContainer, "underlying reader returned a negative byte count"))
			}
			b.pos += int64(n)
			return n, b.readErr()
		}
		b.fill()
		if b.r == b.w {
			return 0, b.readErr()
		}
	}

	n = copy(p, b.buf[b.r:b.w])
	b.r += n
	b.pos += int64(n)
	return n, nil
}

// fill refills buf from rd, retrying a bounded number of times against
// readers that report n == 0, err == nil (which io.Reader permits but
// discourages).
func (b *bufferedSectionReader) fill() {
	if b.r > 0 {
		copy(b.buf, b.buf[b.r:b.w])
		b.w -= b.r
		b.r = 0
	}
	if b.w >= len(b.buf) {
		panic("bufferedSectionReader: fill called with a full buffer")
	}

	const maxZeroReadRetries = 100
	for i := 0; i < maxZeroReadRetries; i++ {
		n, err := b.rd.Read(b.buf[b.w:])
		if n < 0 {
			panic(traceerr.Newf(traceerr.MalformedContainer, "underlying reader returned a negative byte count"))
		}
		b.w += n
		if err != nil {
			b.err = err
			return
		}
		if n > 0 {
			return
		}
	}
	b.err = io.ErrNoProgress
}
