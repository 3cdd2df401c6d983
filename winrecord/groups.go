package winrecord

// Classic (group, type, version) identifiers for every record view this
// catalog decodes. These are an internally consistent invented
// enumeration, not re-derived from a live trace (see DESIGN.md's Open
// Question note on HeaderKind for the same caveat): nothing here is
// checked against a real ETL file, only against the field layouts
// transcribed from original_source.
const (
	GroupHeader   byte = 0
	GroupProcess  byte = 1
	GroupThread   byte = 2
	GroupImage    byte = 3
	GroupPerfInfo byte = 4
	GroupConfig   byte = 6

	TypeHeader uint16 = 0

	TypeProcessLoad    uint16 = 1
	TypeProcessUnload  uint16 = 2
	TypeProcessDCStart uint16 = 3
	TypeProcessDCEnd   uint16 = 4
	TypeProcessDefunct uint16 = 39

	TypeThreadStart   uint16 = 1
	TypeThreadEnd     uint16 = 2
	TypeThreadDCStart uint16 = 3
	TypeThreadDCEnd   uint16 = 4
	TypeThreadSetName uint16 = 2 // disambiguated from TypeThreadEnd by version (2 vs 3)
	TypeContextSwitch uint16 = 4 // disambiguated from TypeThreadDCEnd by version (4 vs 3)

	TypeImageLoad    uint16 = 10
	TypeImageUnload  uint16 = 2
	TypeImageDCStart uint16 = 3
	TypeImageDCEnd   uint16 = 4

	TypeSampledProfile     uint16 = 46
	TypePMCCounterProfile  uint16 = 47
	TypePMCCounterConfig   uint16 = 72
	TypeSampleIntervalNew  uint16 = 73
	TypeSampleIntervalOld  uint16 = 74

	TypeDeviceMapping uint16 = 22

	VersionHeader         uint16 = 2
	VersionProcess        uint16 = 4
	VersionThread         uint16 = 3
	VersionThreadSetName  uint16 = 2
	VersionContextSwitch  uint16 = 4
	VersionImage          uint16 = 3
	VersionSampledProfile uint16 = 2
	VersionPMCProfile     uint16 = 2
	VersionPMCConfig      uint16 = 2
	VersionSampleInterval uint16 = 3
	VersionDeviceMapping  uint16 = 1
	VersionStackWalk      uint16 = 2
	VersionVolumeMapping  uint16 = 1
	VersionImageID        uint16 = 2
	VersionPDBID          uint16 = 2
)

// GUID halves for the modern (guid, id, version) records this catalog
// decodes, encoded the way wintrace.modernKey folds a GUID into two
// uint64 halves. These are invented but stable identifiers used only to
// key this reader's own dispatch registry, never compared against an
// on-disk value beyond what ParseHeader already extracted.
const (
	StackWalkGUIDHi uint64 = 0xdef2bf8c0a0de0a3
	StackWalkGUIDLo uint64 = 0x9b793a6d5c84335c
	StackWalkEventID uint16 = 32

	StackWalkKeyGUIDHi uint64 = 0x23ef3fe71c1e2a6e
	StackWalkKeyGUIDLo uint64 = 0x0c4f2f15ac3f9d8a
	StackWalkKeyEventID uint16 = 34

	VolumeMappingExGUIDHi uint64 = 0x8156f3c5e9d5d50a
	VolumeMappingExGUIDLo uint64 = 0x07f1c6d2a5a1d4e3
	VolumeMappingExEventID uint16 = 1

	ImageIDGUIDHi uint64 = 0xb3e675d20e2ec2cc
	ImageIDGUIDLo uint64 = 0x9c9f417dba6ec345
	ImageIDEventID uint16 = 0

	PDBIDGUIDHi uint64 = 0xb3e675d20e2ec2cc
	PDBIDGUIDLo uint64 = 0x9c9f417dba6ec345
	PDBIDEventID uint16 = 3
)
