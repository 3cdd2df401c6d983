package linuxtrace

import (
	"github.com/gopherprof/tracecore/dispatch"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/tracemodel"
)

// linuxKey builds the dispatch.Key for one record's concrete type, using
// the on-disk perf_event_header.type value as the key.
func linuxKey(r Record) dispatch.Key {
	return dispatch.LinuxKey(uint32(r.Type()))
}

// Walk reads every record from f in file order (perf.data has no
// per-CPU buffer structure to merge the way ETW does, so file order is
// already time-ordered for the common single-stream case; spec §4.1)
// and dispatches it through reg, reporting progress and honoring
// cancellation between records.
func (f *File) Walk(reg *dispatch.Registry, listener progress.Listener, token *progress.Token) error {
	rs := f.Records(RecordsFileOrder)
	reporter := progress.NewReporter(listener, 0)
	reporter.Start("Reading trace", "")

	n := 0
	for rs.Next() {
		if token.Cancelled() {
			return traceerr.Newf(traceerr.Cancelled, "trace walk cancelled")
		}
		header := dispatch.CommonHeader{Key: linuxKey(rs.Record), Timestamp: rs.Record.Common().Time}
		if err := reg.Dispatch(header, nil); err != nil {
			return err
		}
		n++
		reporter.Advance(1)
	}
	if err := rs.Err(); err != nil {
		return traceerr.Wrap(traceerr.MalformedRecord, err, "reading record %d", n)
	}
	reporter.Finish("")
	return nil
}

// ToSample converts a RecordSample into the shared tracemodel.Sample
// representation. It sets only Timestamp, IP and Source and leaves the
// kernel and user stack IDs unset: the caller (tracecontext) splits the
// Callchain with SplitCallchain and interns each run into a StackID,
// since interning requires the content-addressed stack table that lives
// outside this package.
func ToSample(r *RecordSample, source tracemodel.SampleSourceID) tracemodel.Sample {
	return tracemodel.Sample{
		Timestamp: r.Time,
		IP:        r.IP,
		Source:    source,
	}
}

// SplitCallchain separates a perf call-chain into its kernel and user
// frame runs, consuming the CallchainKernel/CallchainUser marker values
// that precede each run (see perf_event.h's PERF_CONTEXT_* constants).
// Frames are returned leaf-first, matching stackwalk order on the
// Windows side so tracecontext can intern both uniformly.
func SplitCallchain(chain []uint64) (kernel, user []uint64) {
	const (
		contextKernel = ^uint64(0x80 - 1)  // PERF_CONTEXT_KERNEL = -128
		contextUser   = ^uint64(0x200 - 1) // PERF_CONTEXT_USER = -512
		contextMax    = ^uint64(4095 - 1)  // PERF_CONTEXT_MAX = -4095
	)
	var cur *[]uint64
	for _, ip := range chain {
		switch ip {
		case contextKernel:
			kernel = []uint64{}
			cur = &kernel
			continue
		case contextUser:
			user = []uint64{}
			cur = &user
			continue
		}
		if ip >= contextMax {
			// Any other PERF_CONTEXT_* marker (hypervisor, guest
			// kernel/user): not modeled, treat as a stack-run
			// boundary with no current destination.
			cur = nil
			continue
		}
		if cur != nil {
			*cur = append(*cur, ip)
		}
	}
	return kernel, user
}
