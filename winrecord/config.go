package winrecord

import (
	"encoding/binary"

	"github.com/gopherprof/tracecore/internal/bytesview"
)

// DeviceMappingEvent is the classic config/22 "device mapping" record that
// associates a drive letter with its NT device name, used by
// tracecontext's NT-device-path to DOS-path normalization (spec §4.6).
type DeviceMappingEvent struct {
	NTDeviceName string
	DriveLetter  string
}

// ParseDeviceMappingV1 decodes a config/22 record: a NUL-terminated UTF-16
// NT device name followed by a NUL-terminated UTF-16 drive letter string
// (e.g. "C:").
func ParseDeviceMappingV1(buf []byte) (DeviceMappingEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	ntName, err := v.CString16(0)
	if err != nil {
		return DeviceMappingEvent{}, err
	}
	driveOff := 2 * (len(ntName) + 1)
	drive, err := v.CString16(driveOff)
	if err != nil {
		return DeviceMappingEvent{}, err
	}
	return DeviceMappingEvent{NTDeviceName: ntName, DriveLetter: drive}, nil
}

// PartitionMapEntry is one disk-signature/partition-offset pair in a
// system-config-ex volume mapping record, used as a fallback when a trace
// has no explicit drive-letter mapping and paths must be normalized by
// inferring partition order (SPEC_FULL §C.6).
type PartitionMapEntry struct {
	DiskSignature   uint32
	PartitionNumber uint32
	StartingOffset  uint64
	PartitionSize   uint64
}

// VolumeMappingExEvent is the guid-keyed "system config ex" volume mapping
// record: a modern replacement for DeviceMappingEvent that additionally
// reports each partition's disk signature and byte extent.
type VolumeMappingExEvent struct {
	NTDeviceName string
	Entries      []PartitionMapEntry
}

// ParseVolumeMappingExV1 decodes a system-config-ex volume-mapping record.
func ParseVolumeMappingExV1(buf []byte) (VolumeMappingExEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	count, err := v.U32(0)
	if err != nil {
		return VolumeMappingExEvent{}, err
	}
	ntName, err := v.CString16(4)
	if err != nil {
		return VolumeMappingExEvent{}, err
	}
	off := 4 + 2*(len(ntName)+1)
	entries := make([]PartitionMapEntry, 0, count)
	const entrySize = 4 + 4 + 8 + 8
	for i := uint32(0); i < count; i++ {
		base := off + int(i)*entrySize
		sig, err := v.U32(base)
		if err != nil {
			return VolumeMappingExEvent{}, err
		}
		partNum, err := v.U32(base + 4)
		if err != nil {
			return VolumeMappingExEvent{}, err
		}
		startOff, err := v.U64(base + 8)
		if err != nil {
			return VolumeMappingExEvent{}, err
		}
		size, err := v.U64(base + 16)
		if err != nil {
			return VolumeMappingExEvent{}, err
		}
		entries = append(entries, PartitionMapEntry{
			DiskSignature: sig, PartitionNumber: partNum,
			StartingOffset: startOff, PartitionSize: size,
		})
	}
	return VolumeMappingExEvent{NTDeviceName: ntName, Entries: entries}, nil
}

// ImageIDEvent is the guid-keyed "image id" record: supplementary
// identification (image base, PE time-date stamp and original file name)
// for a module already reported by an ImageEvent in the given process.
type ImageIDEvent struct {
	ProcessID uint32
	ImageBase uint64
	TimeDateStamp uint32
	OriginalFileName string
}

// ParseImageIDV2 decodes an image-id version-2 record.
func ParseImageIDV2(buf []byte, ptrSize int) (ImageIDEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	base, err := v.Pointer(0, ptrSize)
	if err != nil {
		return ImageIDEvent{}, err
	}
	pid, err := v.U32(ptrSize)
	if err != nil {
		return ImageIDEvent{}, err
	}
	timeDate, err := v.U32(ptrSize + 4)
	if err != nil {
		return ImageIDEvent{}, err
	}
	name, err := v.CString16(ptrSize + 8)
	if err != nil {
		return ImageIDEvent{}, err
	}
	return ImageIDEvent{ProcessID: pid, ImageBase: base, TimeDateStamp: timeDate, OriginalFileName: name}, nil
}

// PDBIDEvent is the guid-keyed "image id / PDB info" record carrying the
// PDB signature used to locate symbols for a module (spec §6.2).
type PDBIDEvent struct {
	ImageBase uint64
	GUID      bytesview.GUID
	Age       uint32
	PDBFileName string
}

// ParsePDBIDV2 decodes a PDB-info version-2 record.
func ParsePDBIDV2(buf []byte, ptrSize int) (PDBIDEvent, error) {
	v := bytesview.New(buf, binary.LittleEndian)
	base, err := v.Pointer(0, ptrSize)
	if err != nil {
		return PDBIDEvent{}, err
	}
	guid, err := v.GUID(ptrSize)
	if err != nil {
		return PDBIDEvent{}, err
	}
	age, err := v.U32(ptrSize + bytesview.GUIDSize)
	if err != nil {
		return PDBIDEvent{}, err
	}
	name, err := v.CString8(ptrSize + bytesview.GUIDSize + 4)
	if err != nil {
		return PDBIDEvent{}, err
	}
	return PDBIDEvent{ImageBase: base, GUID: guid, Age: age, PDBFileName: name}, nil
}
