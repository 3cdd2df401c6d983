package tracecontext

import (
	"sort"
	"strings"

	"github.com/gopherprof/tracecore/winrecord"
)

// PathNormalizer converts NT kernel device paths ("\Device\HarddiskVolume2\
// Windows\System32\ntdll.dll") into DOS-style display paths
// ("C:\Windows\System32\ntdll.dll"), per spec §4.6 / SPEC_FULL §C.6.
//
// The primary source is an explicit device-mapping record; when a trace
// carries none (common for traces collected without the drive-mapping
// provider enabled), PathNormalizer falls back to inferring drive order
// from the volume-mapping-ex partition table, assigning letters in
// ascending disk-signature/partition-number order starting at C:.
type PathNormalizer struct {
	deviceToDrive map[string]string
	partitionsFor map[string][]winrecord.PartitionMapEntry
	inferred      map[string]string
}

// NewPathNormalizer returns a normalizer with no mappings yet learned.
func NewPathNormalizer() *PathNormalizer {
	return &PathNormalizer{
		deviceToDrive: make(map[string]string),
		partitionsFor: make(map[string][]winrecord.PartitionMapEntry),
	}
}

// AddDeviceMapping records an explicit NT-device-to-drive-letter mapping.
func (p *PathNormalizer) AddDeviceMapping(ntDevice, driveLetter string) {
	p.deviceToDrive[normalizeDevicePrefix(ntDevice)] = driveLetter
}

// AddVolumeMapping records a volume's partition table, used for the
// drive-order inference fallback when no explicit mapping exists for
// ntDevice by the time Normalize is called.
func (p *PathNormalizer) AddVolumeMapping(ntDevice string, entries []winrecord.PartitionMapEntry) {
	dev := normalizeDevicePrefix(ntDevice)
	p.partitionsFor[dev] = append(p.partitionsFor[dev], entries...)
	p.inferred = nil // invalidate cached inference; entries changed
}

func normalizeDevicePrefix(s string) string {
	return strings.ToLower(strings.TrimRight(s, `\`))
}

// Normalize rewrites an NT device-rooted path into a DOS display path. If
// no device or inferred mapping matches, the raw path is returned
// unchanged (better to show the kernel path than to guess wrong).
func (p *PathNormalizer) Normalize(raw string) string {
	lower := strings.ToLower(raw)
	for dev, drive := range p.deviceToDrive {
		if strings.HasPrefix(lower, dev) {
			return drive + raw[len(dev):]
		}
	}
	for dev, drive := range p.inferredMap() {
		if strings.HasPrefix(lower, dev) {
			return drive + raw[len(dev):]
		}
	}
	return raw
}

// inferredMap lazily assigns drive letters to devices seen only via
// volume-mapping-ex records, ordered by (disk signature, partition
// number) ascending, starting at C: (SPEC_FULL §C.4's fallback rule).
func (p *PathNormalizer) inferredMap() map[string]string {
	if p.inferred != nil {
		return p.inferred
	}
	p.inferred = make(map[string]string)
	type devFirstEntry struct {
		dev   string
		entry winrecord.PartitionMapEntry
	}
	var ordered []devFirstEntry
	for dev, entries := range p.partitionsFor {
		if _, known := p.deviceToDrive[dev]; known {
			continue
		}
		if len(entries) == 0 {
			continue
		}
		// Only need the first partition entry recorded for this device
		// to order it against the others; multiple entries for one
		// volume mapping describe the same device's partitions.
		ordered = append(ordered, devFirstEntry{dev: dev, entry: entries[0]})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].entry.DiskSignature != ordered[j].entry.DiskSignature {
			return ordered[i].entry.DiskSignature < ordered[j].entry.DiskSignature
		}
		return ordered[i].entry.PartitionNumber < ordered[j].entry.PartitionNumber
	})
	for i, e := range ordered {
		letter := string(rune('C' + i))
		p.inferred[e.dev] = letter + ":"
	}
	return p.inferred
}
