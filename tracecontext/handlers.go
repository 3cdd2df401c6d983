package tracecontext

import (
	"github.com/gopherprof/tracecore/dispatch"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/linuxtrace"
	"github.com/gopherprof/tracecore/tracemodel"
	"github.com/gopherprof/tracecore/winrecord"
)

// RegisterWindows wires the classic/modern record views the builder
// consumes into reg (the image-id and sample-interval views winrecord
// also decodes are not registered), updating b as each record is dispatched (spec §4.5,
// §4.6). ptrSize must be the trace's own pointer size (resolved from the
// container's header/0 record before File.Walk is called).
func (b *Builder) RegisterWindows(reg *dispatch.Registry, ptrSize int) {
	b.ptrSize = ptrSize
	classic := func(group byte, typ, version uint16, h dispatch.Handler) {
		reg.Register(dispatch.ClassicKey(group, byte(typ), version), h)
	}
	modern := func(guidHi, guidLo uint64, id, version uint16, h dispatch.Handler) {
		reg.Register(dispatch.ModernKey(guidHi, guidLo, id, version), h)
	}

	classic(winrecord.GroupHeader, winrecord.TypeHeader, winrecord.VersionHeader, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseEventTraceHeaderV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.ApplyWindowsHeader(ev)
		return nil
	})

	for _, typ := range []uint16{winrecord.TypeProcessLoad, winrecord.TypeProcessDCStart} {
		typ := typ
		classic(winrecord.GroupProcess, typ, winrecord.VersionProcess, func(h dispatch.CommonHeader, data []byte) error {
			ev, err := winrecord.ParseProcessEventV4(data, ptrSize)
			if err != nil {
				return err
			}
			b.StartProcess(int(ev.ProcessID), h.Timestamp, ev.ImageFileName, ev.CommandLine)
			return nil
		})
	}
	for _, typ := range []uint16{winrecord.TypeProcessUnload, winrecord.TypeProcessDCEnd} {
		typ := typ
		classic(winrecord.GroupProcess, typ, winrecord.VersionProcess, func(h dispatch.CommonHeader, data []byte) error {
			ev, err := winrecord.ParseProcessEventV4(data, ptrSize)
			if err != nil {
				return err
			}
			b.EndProcess(int(ev.ProcessID), h.Timestamp)
			return nil
		})
	}

	for _, typ := range []uint16{winrecord.TypeThreadStart, winrecord.TypeThreadDCStart} {
		typ := typ
		classic(winrecord.GroupThread, typ, winrecord.VersionThread, func(h dispatch.CommonHeader, data []byte) error {
			ev, err := winrecord.ParseThreadEventV3(data, ptrSize)
			if err != nil {
				return err
			}
			proc := b.LookupProcess(int(ev.ProcessID), h.Timestamp)
			var pk tracemodel.ProcessKey
			if proc != nil {
				pk = proc.Key
			}
			b.StartThread(int(ev.ThreadID), pk, h.Timestamp, "")
			return nil
		})
	}
	classic(winrecord.GroupThread, winrecord.TypeThreadDCEnd, winrecord.VersionThread, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseThreadEventV3(data, ptrSize)
		if err != nil {
			return err
		}
		b.EndThread(int(ev.ThreadID), h.Timestamp)
		return nil
	})
	classic(winrecord.GroupThread, winrecord.TypeThreadEnd, winrecord.VersionThread, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseThreadEventV3(data, ptrSize)
		if err != nil {
			return err
		}
		b.EndThread(int(ev.ThreadID), h.Timestamp)
		return nil
	})
	classic(winrecord.GroupThread, winrecord.TypeThreadSetName, winrecord.VersionThreadSetName, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseThreadSetNameV2(data)
		if err != nil {
			return err
		}
		b.SetThreadName(int(ev.ThreadID), h.Timestamp, ev.Name)
		return nil
	})
	classic(winrecord.GroupThread, winrecord.TypeContextSwitch, winrecord.VersionContextSwitch, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseContextSwitchV4(data)
		if err != nil {
			return err
		}
		b.recordContextSwitch(ev, h.Timestamp)
		return nil
	})

	for _, typ := range []uint16{winrecord.TypeImageLoad, winrecord.TypeImageDCStart} {
		typ := typ
		classic(winrecord.GroupImage, typ, winrecord.VersionImage, func(h dispatch.CommonHeader, data []byte) error {
			ev, err := winrecord.ParseImageEventV3(data, ptrSize)
			if err != nil {
				return err
			}
			proc := b.LookupProcess(int(ev.ProcessID), h.Timestamp)
			var pk tracemodel.ProcessKey
			if proc != nil {
				pk = proc.Key
			}
			m := b.LoadModule(pk, ev.ImageBase, ev.ImageSize, h.Timestamp, ev.FileName)
			m.Checksum = ev.ImageChecksum
			return nil
		})
	}
	for _, typ := range []uint16{winrecord.TypeImageUnload, winrecord.TypeImageDCEnd} {
		typ := typ
		classic(winrecord.GroupImage, typ, winrecord.VersionImage, func(h dispatch.CommonHeader, data []byte) error {
			ev, err := winrecord.ParseImageEventV3(data, ptrSize)
			if err != nil {
				return err
			}
			proc := b.LookupProcess(int(ev.ProcessID), h.Timestamp)
			if proc != nil {
				b.UnloadModule(proc.Key, ev.ImageBase, h.Timestamp)
			}
			return nil
		})
	}

	classic(winrecord.GroupPerfInfo, winrecord.TypeSampledProfile, winrecord.VersionSampledProfile, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseSampledProfileV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.recordTimerSample(ev, h.Timestamp)
		return nil
	})
	classic(winrecord.GroupPerfInfo, winrecord.TypePMCCounterProfile, winrecord.VersionPMCProfile, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParsePMCCounterProfileV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.recordPMCSample(ev, h.Timestamp)
		return nil
	})
	classic(winrecord.GroupPerfInfo, winrecord.TypePMCCounterConfig, winrecord.VersionPMCConfig, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParsePMCCounterConfigV2(data)
		if err != nil {
			return err
		}
		b.namePMCSource(ev.Source, ev.Name)
		return nil
	})

	classic(winrecord.GroupConfig, winrecord.TypeDeviceMapping, winrecord.VersionDeviceMapping, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseDeviceMappingV1(data)
		if err != nil {
			return err
		}
		b.paths.AddDeviceMapping(ev.NTDeviceName, ev.DriveLetter)
		return nil
	})

	modern(winrecord.StackWalkGUIDHi, winrecord.StackWalkGUIDLo, winrecord.StackWalkEventID, winrecord.VersionStackWalk, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseStackWalkV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.recordStackWalk(ev)
		return nil
	})
	modern(winrecord.StackWalkKeyGUIDHi, winrecord.StackWalkKeyGUIDLo, winrecord.StackWalkKeyEventID, winrecord.VersionStackWalk, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseStackWalkKeyV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.recordStackWalkKey(ev)
		return nil
	})
	modern(winrecord.VolumeMappingExGUIDHi, winrecord.VolumeMappingExGUIDLo, winrecord.VolumeMappingExEventID, winrecord.VersionVolumeMapping, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParseVolumeMappingExV1(data)
		if err != nil {
			return err
		}
		b.paths.AddVolumeMapping(ev.NTDeviceName, ev.Entries)
		return nil
	})
	modern(winrecord.PDBIDGUIDHi, winrecord.PDBIDGUIDLo, winrecord.PDBIDEventID, winrecord.VersionPDBID, func(h dispatch.CommonHeader, data []byte) error {
		ev, err := winrecord.ParsePDBIDV2(data, ptrSize)
		if err != nil {
			return err
		}
		b.recordPDBInfo(ev)
		return nil
	})
}

// BuildFromLinux walks every record in f in time order, updating b.
// Unlike RegisterWindows, this does not go through a dispatch.Registry:
// perf.data records decode straight to rich Go structs with no fixed byte
// layout a generic (key, raw-bytes) handler could re-decode, so
// tracecontext consumes linuxtrace's own Record interface directly (the
// same way linuxtrace.File.Walk does internally, but keeping the decoded
// record instead of discarding it after computing a dispatch.Key).
func (b *Builder) BuildFromLinux(f *linuxtrace.File, listener progress.Listener, token *progress.Token) error {
	b.ApplyLinuxMeta(f.Meta)

	source := tracemodel.TimerSource
	sourceName := "samples"

	rs := f.Records(linuxtrace.RecordsTimeOrder)
	reporter := progress.NewReporter(listener, 0)
	reporter.Start("Building context", "")
	n := 0
	for rs.Next() {
		if token.Cancelled() {
			return traceerr.Newf(traceerr.Cancelled, "context build cancelled")
		}
		b.dispatchLinuxRecord(rs.Record, source, sourceName)
		n++
		reporter.Advance(1)
	}
	if err := rs.Err(); err != nil {
		return traceerr.Wrap(traceerr.MalformedRecord, err, "reading record %d", n)
	}
	reporter.Finish("")
	return nil
}

// dispatchLinuxRecord updates b from one already-decoded linuxtrace
// record.
func (b *Builder) dispatchLinuxRecord(r linuxtrace.Record, source tracemodel.SampleSourceID, sourceName string) {
	switch rec := r.(type) {
	case *linuxtrace.RecordComm:
		b.StartProcess(rec.PID, rec.Time, rec.Comm, "")
	case *linuxtrace.RecordFork:
		proc := b.LookupProcess(rec.PPID, rec.Time)
		var pk tracemodel.ProcessKey
		if proc != nil {
			pk = proc.Key
		}
		if rec.PID != rec.PPID {
			b.StartProcess(rec.PID, rec.Time, "", "")
		}
		b.StartThread(rec.TID, pk, rec.Time, "")
	case *linuxtrace.RecordExit:
		b.EndProcess(rec.PID, rec.Time)
		b.EndThread(rec.TID, rec.Time)
	case *linuxtrace.RecordMmap:
		proc := b.LookupProcess(rec.PID, rec.Time)
		var pk tracemodel.ProcessKey
		if proc != nil {
			pk = proc.Key
		}
		m := b.LoadModule(pk, rec.Addr, rec.Len, rec.Time, rec.Filename)
		m.PageOff = rec.FileOffset
		m.BuildID = rec.BuildID
	case *linuxtrace.RecordSample:
		b.recordLinuxSample(rec, source, sourceName)
	}
}
