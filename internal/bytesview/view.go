// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytesview implements the zero-copy, endianness-aware byte
// extraction primitives shared by the Windows and Linux trace readers.
//
// A View borrows a byte range and exposes fixed-width integers,
// pointer-sized fields, GUIDs, SIDs, and NUL-terminated strings without
// copying beyond what the accessor itself returns. Views never outlive the
// buffer they borrow from; callers that need to retain a field must copy
// it themselves (see package doc of wintrace for the buffer-ownership
// discipline this supports).
package bytesview

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// A View is a borrowed, read-only byte range plus a declared byte order.
// It is the common base embedded (or wrapped) by every record view in
// winrecord and linuxtrace.
type View struct {
	Buf   []byte
	Order binary.ByteOrder

	// cached string lengths, keyed by the offset the string started
	// at. Observing a string's length is not free (it requires a scan
	// for the terminator), so accessors that may be called more than
	// once within the lifetime of a view reuse the scan.
	strCache map[int]int
}

// New wraps buf as a View using order for multi-byte fields.
func New(buf []byte, order binary.ByteOrder) View {
	return View{Buf: buf, Order: order}
}

func (v *View) need(off, n int) error {
	if off < 0 || n < 0 || off+n > len(v.Buf) {
		return traceerr.Newf(traceerr.MalformedRecord,
			"out-of-range access at offset %d, length %d (buffer is %d bytes)", off, n, len(v.Buf))
	}
	return nil
}

// U8 extracts a single byte at off.
func (v *View) U8(off int) (uint8, error) {
	if err := v.need(off, 1); err != nil {
		return 0, err
	}
	return v.Buf[off], nil
}

// U16 extracts a 16-bit unsigned integer at off.
func (v *View) U16(off int) (uint16, error) {
	if err := v.need(off, 2); err != nil {
		return 0, err
	}
	return v.Order.Uint16(v.Buf[off:]), nil
}

// U32 extracts a 32-bit unsigned integer at off.
func (v *View) U32(off int) (uint32, error) {
	if err := v.need(off, 4); err != nil {
		return 0, err
	}
	return v.Order.Uint32(v.Buf[off:]), nil
}

// U64 extracts a 64-bit unsigned integer at off.
func (v *View) U64(off int) (uint64, error) {
	if err := v.need(off, 8); err != nil {
		return 0, err
	}
	return v.Order.Uint64(v.Buf[off:]), nil
}

// I32 extracts a signed 32-bit integer at off.
func (v *View) I32(off int) (int32, error) {
	x, err := v.U32(off)
	return int32(x), err
}

// I64 extracts a signed 64-bit integer at off.
func (v *View) I64(off int) (int64, error) {
	x, err := v.U64(off)
	return int64(x), err
}

// Pointer extracts a pointer-sized field (4 or 8 bytes, as declared by
// ptrSize) at off, zero-extending 32-bit pointers.
func (v *View) Pointer(off, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		x, err := v.U32(off)
		return uint64(x), err
	case 8:
		return v.U64(off)
	default:
		return 0, traceerr.Newf(traceerr.MalformedRecord, "unsupported pointer size %d", ptrSize)
	}
}

// Bytes returns a borrowed sub-slice [off, off+n).
func (v *View) Bytes(off, n int) ([]byte, error) {
	if err := v.need(off, n); err != nil {
		return nil, err
	}
	return v.Buf[off : off+n], nil
}

// CString8 extracts a NUL-terminated 8-bit string starting at off. The
// observed length is cached so repeated calls at the same offset don't
// re-scan.
func (v *View) CString8(off int) (string, error) {
	if err := v.need(off, 0); err != nil {
		return "", err
	}
	if n, ok := v.cached(off); ok {
		return string(v.Buf[off : off+n]), nil
	}
	for i := off; i < len(v.Buf); i++ {
		if v.Buf[i] == 0 {
			v.setCached(off, i-off)
			return string(v.Buf[off:i]), nil
		}
	}
	v.setCached(off, len(v.Buf)-off)
	return string(v.Buf[off:]), nil
}

// CString16 extracts a NUL-terminated UTF-16 string (in v.Order) starting
// at off.
func (v *View) CString16(off int) (string, error) {
	if err := v.need(off, 0); err != nil {
		return "", err
	}
	if n, ok := v.cached(off); ok {
		return decodeUTF16(v.Buf[off:off+n], v.Order), nil
	}
	i := off
	for ; i+1 < len(v.Buf); i += 2 {
		if v.Order.Uint16(v.Buf[i:]) == 0 {
			v.setCached(off, i-off)
			return decodeUTF16(v.Buf[off:i], v.Order), nil
		}
	}
	v.setCached(off, len(v.Buf)-off)
	return decodeUTF16(v.Buf[off:], v.Order), nil
}

func (v *View) cached(off int) (int, bool) {
	n, ok := v.strCache[off]
	return n, ok
}

func (v *View) setCached(off, n int) {
	if v.strCache == nil {
		v.strCache = make(map[int]int)
	}
	v.strCache[off] = n
}

func decodeUTF16(b []byte, order binary.ByteOrder) string {
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = order.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16s))
}

// GUID is the Windows canonical {u32, u16, u16, u8[8]} GUID layout.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

func (g GUID) String() string {
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		g.Data1, g.Data2, g.Data3,
		g.Data4[0], g.Data4[1], g.Data4[2], g.Data4[3], g.Data4[4], g.Data4[5], g.Data4[6], g.Data4[7])
}

// GUIDSize is the on-disk size of a GUID.
const GUIDSize = 16

// GUID extracts a 16-byte GUID at off.
func (v *View) GUID(off int) (GUID, error) {
	if err := v.need(off, GUIDSize); err != nil {
		return GUID{}, err
	}
	var g GUID
	g.Data1 = v.Order.Uint32(v.Buf[off:])
	g.Data2 = v.Order.Uint16(v.Buf[off+4:])
	g.Data3 = v.Order.Uint16(v.Buf[off+6:])
	copy(g.Data4[:], v.Buf[off+8:off+16])
	return g, nil
}

// SID is a variable-size Windows security identifier:
// 1-byte revision, 1-byte sub-authority count, 6-byte identifier
// authority, N 32-bit sub-authorities (N <= 16).
type SID struct {
	Revision            uint8
	IdentifierAuthority [6]byte
	SubAuthority        []uint32
}

// DynamicSize returns the total on-disk size of the SID: 8 + 4*N.
func (s SID) DynamicSize() int {
	return 8 + 4*len(s.SubAuthority)
}

const maxSubAuthority = 16

// SID extracts a SID at off. It validates the sub-authority count is at
// most 16, per spec.
func (v *View) SID(off int) (SID, error) {
	rev, err := v.U8(off)
	if err != nil {
		return SID{}, err
	}
	count, err := v.U8(off + 1)
	if err != nil {
		return SID{}, err
	}
	if count > maxSubAuthority {
		return SID{}, traceerr.Newf(traceerr.MalformedRecord, "SID sub-authority count %d exceeds maximum %d", count, maxSubAuthority)
	}
	var s SID
	s.Revision = rev
	auth, err := v.Bytes(off+2, 6)
	if err != nil {
		return SID{}, err
	}
	copy(s.IdentifierAuthority[:], auth)
	s.SubAuthority = make([]uint32, count)
	for i := range s.SubAuthority {
		x, err := v.U32(off + 8 + i*4)
		if err != nil {
			return SID{}, err
		}
		s.SubAuthority[i] = x
	}
	return s, nil
}
