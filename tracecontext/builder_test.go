package tracecontext

import (
	"testing"

	"github.com/gopherprof/tracecore/tracemodel"
	"github.com/gopherprof/tracecore/winrecord"
)

func TestProcessVersioning(t *testing.T) {
	b := NewBuilder()
	p1 := b.StartProcess(100, 10, "a.exe", "a.exe --flag")
	if got := b.LookupProcess(100, 10); got != p1 {
		t.Fatalf("LookupProcess(100, 10) = %v, want %v", got, p1)
	}
	b.EndProcess(100, 20)
	if got := b.LookupProcess(100, 20); got != p1 {
		t.Fatalf("LookupProcess(100, 20) = %v, want %v (end is inclusive)", got, p1)
	}
	if got := b.LookupProcess(100, 21); got != nil {
		t.Fatalf("LookupProcess(100, 21) = %v, want nil", got)
	}

	p2 := b.StartProcess(100, 30, "b.exe", "")
	if p2.Key == p1.Key {
		t.Fatalf("PID reuse produced the same process key")
	}
	if got := b.LookupProcess(100, 29); got != nil {
		t.Fatalf("LookupProcess(100, 29) = %v, want nil (before p2 starts)", got)
	}
}

func TestProcessStartDuplicateTimestampMerges(t *testing.T) {
	b := NewBuilder()
	p1 := b.StartProcess(100, 10, "", "")
	p2 := b.StartProcess(100, 10, "a.exe", "a.exe arg")
	if p1 != p2 {
		t.Fatalf("duplicate start at the same timestamp should merge into one version")
	}
	if p1.ImageName != "a.exe" || p1.CommandLine != "a.exe arg" {
		t.Fatalf("merged version did not pick up the later fields: %+v", p1)
	}
	if len(b.processes[100]) != 1 {
		t.Fatalf("expected one process version, got %d", len(b.processes[100]))
	}
}

func TestThreadAssociatesWithActiveProcess(t *testing.T) {
	b := NewBuilder()
	proc := b.StartProcess(100, 10, "a.exe", "")
	th := b.StartThread(200, proc.Key, 15, "")
	if th.ProcessID != proc.Key {
		t.Fatalf("thread ProcessID = %v, want %v", th.ProcessID, proc.Key)
	}
	b.SetThreadName(200, 15, "worker")
	if got := b.LookupThread(200, 15).Name; got != "worker" {
		t.Fatalf("thread name = %q, want %q", got, "worker")
	}

	// A name event with no thread open at that time is discarded, not
	// attached to some other version.
	b.SetThreadName(999, 15, "ghost")
	if b.LookupThread(999, 15) != nil {
		t.Fatalf("set-name on an unknown thread should not create one")
	}
}

func TestModuleIntervalLookup(t *testing.T) {
	b := NewBuilder()
	proc := b.StartProcess(100, 0, "a.exe", "")
	m := b.LoadModule(proc.Key, 0x1000, 0x2000, 5, `\Device\HarddiskVolume1\a.dll`)
	if got := b.LookupModule(proc.Key, 0x1500, 5); got != m {
		t.Fatalf("LookupModule inside range = %v, want %v", got, m)
	}
	if got := b.LookupModule(proc.Key, 0x3500, 5); got != nil {
		t.Fatalf("LookupModule outside range = %v, want nil", got)
	}
	b.UnloadModule(proc.Key, 0x1000, 50)
	if got := b.LookupModule(proc.Key, 0x1500, 51); got != nil {
		t.Fatalf("LookupModule after unload = %v, want nil", got)
	}
	if got := b.LookupModule(proc.Key, 0x1500, 50); got != m {
		t.Fatalf("LookupModule at unload timestamp should still resolve, got %v", got)
	}
}

func TestInternStackDedupes(t *testing.T) {
	b := NewBuilder()
	id1 := b.InternStack([]uint64{1, 2, 3})
	id2 := b.InternStack([]uint64{1, 2, 3})
	id3 := b.InternStack([]uint64{1, 2, 4})
	if id1 != id2 {
		t.Fatalf("identical frame sequences got different stack ids: %d != %d", id1, id2)
	}
	if id1 == id3 {
		t.Fatalf("distinct frame sequences got the same stack id")
	}
	if got := b.StackFrames(id1); len(got) != 3 || got[2] != 3 {
		t.Fatalf("StackFrames(id1) = %v, want [1 2 3]", got)
	}
	if b.InternStack(nil) != tracemodel.NoStack {
		t.Fatalf("interning an empty sequence should return NoStack")
	}
}

func TestTimerAndPMCSampleMergeKeepsPMC(t *testing.T) {
	b := NewBuilder()
	proc := b.StartProcess(100, 0, "a.exe", "")
	b.StartThread(200, proc.Key, 0, "")

	b.recordTimerSample(winrecord.SampledProfileEvent{InstructionPointer: 0x1000, ThreadID: 200, Count: 1}, 100)
	if len(b.samples) != 1 {
		t.Fatalf("expected 1 sample after timer sample, got %d", len(b.samples))
	}
	b.recordPMCSample(winrecord.PMCCounterProfileEvent{InstructionPointer: 0x2000, ThreadID: 200, Source: 5}, 100)
	if len(b.samples) != 1 {
		t.Fatalf("PMC sample at the same (thread, timestamp) should merge, not append; got %d samples", len(b.samples))
	}
	if b.samples[0].IP != 0x2000 {
		t.Fatalf("merged sample IP = %#x, want the PMC variant's %#x", b.samples[0].IP, 0x2000)
	}
	want := tracemodel.SampleSourceID(1000 + 5)
	if b.samples[0].Source != want {
		t.Fatalf("merged sample source = %v, want %v", b.samples[0].Source, want)
	}

	// A stack-walk event with a matching (thread, timestamp) attaches to
	// the merged sample.
	b.recordStackWalk(winrecord.StackWalkEvent{EventTimestamp: 100, ThreadID: 200, Addresses: []uint64{0x401000}})
	if b.samples[0].UserStack == tracemodel.NoStack {
		t.Fatalf("expected the stack walk to attach a user stack to the merged sample")
	}
}

func TestPMCBeforeTimerStillMerges(t *testing.T) {
	b := NewBuilder()
	b.StartThread(200, 0, 0, "")
	b.recordPMCSample(winrecord.PMCCounterProfileEvent{InstructionPointer: 0x2000, ThreadID: 200, Source: 1}, 100)
	b.recordTimerSample(winrecord.SampledProfileEvent{InstructionPointer: 0x9999, ThreadID: 200, Count: 1}, 100)
	if len(b.samples) != 1 {
		t.Fatalf("timer sample arriving after a PMC sample at the same key should be dropped, got %d samples", len(b.samples))
	}
	if b.samples[0].IP != 0x2000 {
		t.Fatalf("PMC variant should win regardless of arrival order, got IP %#x", b.samples[0].IP)
	}
}

func TestPathNormalizerDeviceMapping(t *testing.T) {
	p := NewPathNormalizer()
	p.AddDeviceMapping(`\Device\HarddiskVolume2`, "C:")
	got := p.Normalize(`\Device\HarddiskVolume2\Windows\System32\ntdll.dll`)
	if got != `C:\Windows\System32\ntdll.dll` {
		t.Fatalf("Normalize = %q, want %q", got, `C:\Windows\System32\ntdll.dll`)
	}
	if got := p.Normalize(`\Device\HarddiskVolume9\x.dll`); got != `\Device\HarddiskVolume9\x.dll` {
		t.Fatalf("unmapped device path should be returned unchanged, got %q", got)
	}
}

func TestPathNormalizerPartitionOrderFallback(t *testing.T) {
	p := NewPathNormalizer()
	p.AddVolumeMapping(`\Device\HarddiskVolume2`, []winrecord.PartitionMapEntry{
		{DiskSignature: 1, PartitionNumber: 2},
	})
	p.AddVolumeMapping(`\Device\HarddiskVolume1`, []winrecord.PartitionMapEntry{
		{DiskSignature: 1, PartitionNumber: 1},
	})
	got1 := p.Normalize(`\Device\HarddiskVolume1\a.dll`)
	got2 := p.Normalize(`\Device\HarddiskVolume2\b.dll`)
	if got1 != `C:\a.dll` {
		t.Fatalf("lower partition number should map to C:, got %q", got1)
	}
	if got2 != `D:\b.dll` {
		t.Fatalf("higher partition number should map to D:, got %q", got2)
	}
}
