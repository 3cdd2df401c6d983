package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// ImageEvent is the classic image-load record (types Load=10, Unload=2,
// DCStart=3, DCEnd=4; version 3). image_base/image_size are always
// 8-byte fields regardless of trace bitness; only default_base and the
// trailing filename offset shift with pointer size.
type ImageEvent struct {
	ImageBase      uint64
	ImageSize      uint64
	ProcessID      uint32
	ImageChecksum  uint32
	TimeDateStamp  uint32
	SignatureLevel uint8
	SignatureType  uint8
	DefaultBase    uint64
	FileName       string
}

// ParseImageEventV3 decodes an image/{2,3,4,10} version-3 record.
func ParseImageEventV3(buf []byte, ptrSize int) (ImageEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)

	base, err := v.U64(0)
	if err != nil {
		return ImageEvent{}, err
	}
	size, err := v.U64(8)
	if err != nil {
		return ImageEvent{}, err
	}
	pid, err := v.U32(16)
	if err != nil {
		return ImageEvent{}, err
	}
	checksum, err := v.U32(20)
	if err != nil {
		return ImageEvent{}, err
	}
	timeDate, err := v.U32(24)
	if err != nil {
		return ImageEvent{}, err
	}
	sigLevel, err := v.U8(28)
	if err != nil {
		return ImageEvent{}, err
	}
	sigType, err := v.U8(29)
	if err != nil {
		return ImageEvent{}, err
	}
	defaultBase, err := v.Pointer(32, ptrSize)
	if err != nil {
		return ImageEvent{}, err
	}
	fileName, err := v.CString16(32 + ptrSize)
	if err != nil {
		return ImageEvent{}, err
	}

	return ImageEvent{
		ImageBase: base, ImageSize: size, ProcessID: pid,
		ImageChecksum: checksum, TimeDateStamp: timeDate,
		SignatureLevel: sigLevel, SignatureType: sigType,
		DefaultBase: defaultBase, FileName: fileName,
	}, nil
}
