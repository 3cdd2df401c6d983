// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// fieldCursor walks a byte slice holding one perf.data record body,
// consuming fixed- and variable-width fields from the front. Unlike a
// plain slice re-slice, it never panics on a short buffer: the first
// out-of-range access latches a *traceerr.Error in err and every
// subsequent read becomes a no-op that returns the zero value, so a
// truncated record reports one clean error instead of taking down the
// whole walk.
type fieldCursor struct {
	buf   []byte
	order binary.ByteOrder
	err   *traceerr.Error
}

func newFieldCursor(buf []byte, order binary.ByteOrder) fieldCursor {
	return fieldCursor{buf: buf, order: order}
}

// failure reports the first decoding failure seen by this cursor, or nil.
func (c *fieldCursor) failure() *traceerr.Error {
	return c.err
}

// take consumes and returns the next n bytes, or nil once the cursor
// has failed or the buffer is too short to satisfy the request.
func (c *fieldCursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if len(c.buf) < n {
		c.err = traceerr.Newf(traceerr.MalformedRecord, "record body truncated: need %d more bytes, have %d", n, len(c.buf))
		c.buf = nil
		return nil
	}
	out := c.buf[:n]
	c.buf = c.buf[n:]
	return out
}

func (c *fieldCursor) skip(n int) {
	c.take(n)
}

func (c *fieldCursor) bytes(dst []byte) {
	src := c.take(len(dst))
	if src == nil {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	copy(dst, src)
}

func (c *fieldCursor) u16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return c.order.Uint16(b)
}

func (c *fieldCursor) u32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return c.order.Uint32(b)
}

func (c *fieldCursor) i32() int32 {
	return int32(c.u32())
}

func (c *fieldCursor) u64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return c.order.Uint64(b)
}

func (c *fieldCursor) u64s(dst []uint64) {
	b := c.take(len(dst) * 8)
	if b == nil {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		dst[i] = c.order.Uint64(b[i*8:])
	}
}

// cond-guarded variants decode a field only when its bit is set in the
// record's sample_type/read_format mask; otherwise they report zero
// without consuming any bytes. This mirrors the conditional layout of
// perf_event.h's sample and read records, where absent fields simply
// don't exist on the wire.
func (c *fieldCursor) u32If(present bool) uint32 {
	if !present {
		return 0
	}
	return c.u32()
}

func (c *fieldCursor) i32If(present bool) int32 {
	if !present {
		return 0
	}
	return c.i32()
}

func (c *fieldCursor) u64If(present bool) uint64 {
	if !present {
		return 0
	}
	return c.u64()
}

// cstring consumes a NUL-terminated string. If no NUL byte is found
// before the cursor runs out of buffer, it latches a truncation error
// and returns the partial string decoded so far.
func (c *fieldCursor) cstring() string {
	if c.err != nil {
		return ""
	}
	for i, b := range c.buf {
		if b == 0 {
			s := string(c.buf[:i])
			c.buf = c.buf[i+1:]
			return s
		}
	}
	s := string(c.buf)
	c.err = traceerr.Newf(traceerr.MalformedRecord, "string field missing NUL terminator")
	c.buf = nil
	return s
}

// lenString consumes a uint32 byte count followed by a NUL-terminated
// string padded to that count, the encoding used by perf.data feature
// sections (hostname, CPU description, and the like).
func (c *fieldCursor) lenString() string {
	n := c.u32()
	field := c.take(int(n))
	if field == nil {
		return ""
	}
	sub := newFieldCursor(field, c.order)
	s := sub.cstring()
	if sub.err != nil && c.err == nil {
		c.err = sub.err
	}
	return s
}

func (c *fieldCursor) stringList() []string {
	count := c.u32()
	out := make([]string, 0, count)
	for i := uint32(0); i < count && c.err == nil; i++ {
		out = append(out, c.lenString())
	}
	return out
}
