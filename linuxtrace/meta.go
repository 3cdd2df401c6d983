// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linuxtrace

import (
	"encoding/binary"
	"io"
	"reflect"

	"github.com/gopherprof/tracecore/internal/traceerr"
)

// FileMeta holds the optional metadata feature sections a perf.data
// file may carry: facts about the machine and command line that
// recorded it, rather than the trace itself. Every field is the zero
// value when the corresponding feature bit wasn't set.
type FileMeta struct {
	// BuildIDs lists build IDs for processes and libraries seen in
	// this profile, or nil if the feature is absent. In "live mode"
	// captures (perf inject), build IDs can also show up in the
	// sample stream itself.
	BuildIDs []BuildIDInfo

	// Hostname is the recording machine's hostname, or "" if unknown.
	Hostname string

	// OSRelease is the recording machine's OS release, e.g.
	// "3.13.0-62", or "" if unknown.
	OSRelease string

	// Version is the perf version that wrote this file, e.g.
	// "3.13.11", or "" if unknown.
	Version string

	// Arch is the recording machine's architecture, e.g. "x86_64",
	// or "" if unknown.
	Arch string

	// CPUsOnline and CPUsAvail are the number of online and
	// available CPUs on the recording machine, or 0, 0 if unknown.
	CPUsOnline, CPUsAvail int

	// CPUDesc describes the recording machine's CPU, e.g.
	// "Intel(R) Core(TM) i7-4600U CPU @ 2.10GHz", or "" if unknown.
	CPUDesc string

	// CPUID identifies the recording machine's CPU type, or "" if
	// unknown. Format varies by architecture; on x86 it's a
	// comma-separated vendor, family, model, and stepping, e.g.
	// "GenuineIntel,6,69,1".
	CPUID string

	// TotalMem is the recording machine's total memory in bytes, or
	// 0 if unknown.
	TotalMem int64

	// CmdLine is the argument list perf was invoked with, or nil if
	// unknown.
	CmdLine []string

	// CoreGroups and ThreadGroups describe the recording machine's
	// CPU topology: each CPUSet in CoreGroups is the CPUs sharing a
	// package, and each CPUSet in ThreadGroups is the hardware
	// threads sharing a core. Both are nil if unknown.
	CoreGroups, ThreadGroups []CPUSet

	// NUMANodes lists the recording machine's NUMA nodes, or nil if
	// unknown.
	NUMANodes []NUMANode

	// PMUMappings maps numerical PMU type IDs to their names, or nil
	// if unknown.
	PMUMappings map[PMUTypeID]string

	// Groups describes each perf event group present in this
	// profile, or nil if unknown.
	Groups []GroupDesc
}

// PMUTypeID is the numerical type ID the kernel assigns a PMU.
type PMUTypeID int

// BuildIDInfo records the mapping between a single build ID and the
// path of an executable or library that has it.
type BuildIDInfo struct {
	CPUMode  CPUMode
	PID      int // usually -1; nonzero for VM kernels
	BuildID  BuildID
	Filename string
}

// BuildID is a raw ELF build ID.
type BuildID []byte

func (b BuildID) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

// NUMANode describes a single NUMA node on the recording machine.
type NUMANode struct {
	Node              int
	MemTotal, MemFree int64
	CPUs              CPUSet
}

// GroupDesc describes a group of PMU events scheduled together.
type GroupDesc struct {
	Name       string
	Leader     int
	NumMembers int
}

// featureParsers maps each recognized feature bit to the function that
// decodes its section body into FileMeta.
var featureParsers = map[feature]func(*FileMeta, *fieldCursor) error{
	featureBuildID:      (*FileMeta).parseBuildID,
	featureHostname:     metaStringField("Hostname"),
	featureOSRelease:    metaStringField("OSRelease"),
	featureVersion:      metaStringField("Version"),
	featureArch:         metaStringField("Arch"),
	featureNrCpus:       (*FileMeta).parseNrCPUs,
	featureCPUDesc:      metaStringField("CPUDesc"),
	featureCPUID:        metaStringField("CPUID"),
	featureTotalMem:     (*FileMeta).parseTotalMem,
	featureCmdline:      (*FileMeta).parseCmdLine,
	featureCPUTopology:  (*FileMeta).parseCPUTopology,
	featureNUMATopology: (*FileMeta).parseNUMATopology,
	featurePMUMappings:  (*FileMeta).parsePMUMappings,
	featureGroupDesc:    (*FileMeta).parseGroupDesc,
}

// parse decodes the section for feature bit f, if it's one this
// reader recognizes. Unrecognized feature bits are silently skipped.
func (m *FileMeta) parse(f feature, sec fileSection, r io.ReaderAt) error {
	parser := featureParsers[f]
	if parser == nil {
		return nil
	}

	data, err := sec.data(r)
	if err != nil {
		return traceerr.Wrap(traceerr.Truncated, err, "reading feature section body")
	}
	cur := newFieldCursor(data, binary.LittleEndian)
	if err := parser(m, &cur); err != nil {
		return err
	}
	return cur.failure()
}

// metaStringField builds a parser for the common case of a feature
// section that's just a length-prefixed string, storing the result in
// the named field of FileMeta via reflection.
func metaStringField(name string) func(*FileMeta, *fieldCursor) error {
	return func(m *FileMeta, cur *fieldCursor) error {
		cur.u32() // length; redundant with the NUL terminator
		str := cur.cstring()
		reflect.ValueOf(m).Elem().FieldByName(name).SetString(str)
		return nil
	}
}

func (m *FileMeta) parseBuildID(cur *fieldCursor) error {
	m.BuildIDs = make([]BuildIDInfo, 0)
	for len(cur.buf) > 0 && cur.failure() == nil {
		var bid BuildIDInfo
		start := cur.buf

		// Each entry is itself prefixed with a record header.
		cur.u32() // type; unused, every entry is a build-id record
		bid.CPUMode = CPUMode(cur.u16() & uint16(recordMiscCPUModeMask))
		size := cur.u16()
		bid.PID = int(cur.i32())
		// The build ID is 20 bytes but padded out to 8-byte alignment.
		raw := make([]byte, 24)
		cur.bytes(raw)
		bid.BuildID = BuildID(raw[:20])
		bid.Filename = cur.cstring()

		if cur.failure() != nil {
			return nil
		}
		m.BuildIDs = append(m.BuildIDs, bid)
		if int(size) > len(start) {
			return traceerr.Newf(traceerr.MalformedContainer, "build id entry claims size %d, longer than remaining section", size)
		}
		cur.buf = start[size:]
	}
	return nil
}

func (m *FileMeta) parseNrCPUs(cur *fieldCursor) error {
	m.CPUsOnline, m.CPUsAvail = int(cur.u32()), int(cur.u32())
	return nil
}

func (m *FileMeta) parseTotalMem(cur *fieldCursor) error {
	m.TotalMem = int64(cur.u64()) * 1024
	return nil
}

func (m *FileMeta) parseCmdLine(cur *fieldCursor) error {
	m.CmdLine = cur.stringList()
	return nil
}

func (m *FileMeta) parseCPUTopology(cur *fieldCursor) error {
	cores, threads := cur.stringList(), cur.stringList()
	m.CoreGroups = make([]CPUSet, len(cores))
	for i, str := range cores {
		set, err := parseCPUSet(str)
		if err != nil {
			return err
		}
		m.CoreGroups[i] = set
	}
	m.ThreadGroups = make([]CPUSet, len(threads))
	for i, str := range threads {
		set, err := parseCPUSet(str)
		if err != nil {
			return err
		}
		m.ThreadGroups[i] = set
	}
	return nil
}

func (m *FileMeta) parseNUMATopology(cur *fieldCursor) error {
	count := cur.u32()
	m.NUMANodes = make([]NUMANode, 0, count)
	for i := uint32(0); i < count; i++ {
		node := NUMANode{
			Node:     int(cur.u32()),
			MemTotal: int64(cur.u64()) * 1024,
			MemFree:  int64(cur.u64()) * 1024,
		}
		set, err := parseCPUSet(cur.lenString())
		if err != nil {
			return err
		}
		node.CPUs = set
		m.NUMANodes = append(m.NUMANodes, node)
	}
	return nil
}

func (m *FileMeta) parsePMUMappings(cur *fieldCursor) error {
	count := cur.u32()
	m.PMUMappings = make(map[PMUTypeID]string, count)
	for i := uint32(0); i < count; i++ {
		id := PMUTypeID(cur.u32())
		m.PMUMappings[id] = cur.lenString()
	}
	return nil
}

func (m *FileMeta) parseGroupDesc(cur *fieldCursor) error {
	count := cur.u32()
	m.Groups = make([]GroupDesc, 0, count)
	for i := uint32(0); i < count; i++ {
		m.Groups = append(m.Groups, GroupDesc{
			Name:       cur.lenString(),
			Leader:     int(cur.u32()),
			NumMembers: int(cur.u32()),
		})
	}
	return nil
}
