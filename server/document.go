// Package server implements the worker-pool and per-document
// serialization that spec §5 explicitly places outside the core: the
// core itself only requires that one operation on a given document runs
// at a time, leaving the thread pool and document bookkeeping to "the
// surrounding server". This package is that surrounding server, exposing
// the four collaborator operations of spec §6.3 (open, process, build
// context, analyze) over a bounded pool of goroutines.
package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gopherprof/tracecore/dispatch"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/internal/traceerr"
	"github.com/gopherprof/tracecore/linuxtrace"
	"github.com/gopherprof/tracecore/samplesprovider"
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
	"github.com/gopherprof/tracecore/tracecontext"
	"github.com/gopherprof/tracecore/tracemodel"
	"github.com/gopherprof/tracecore/wintrace"
)

// ErrNotProcessed is returned by Context and Analyze when Process has not
// yet completed for a document.
var ErrNotProcessed = errors.New("server: document has not been processed")

// Kind identifies which trace container a Document was opened from.
type Kind int

const (
	KindLinux Kind = iota
	KindWindows
)

func (k Kind) String() string {
	if k == KindWindows {
		return "windows"
	}
	return "linux"
}

// perfMagic is the little-endian perf.data magic linuxtrace.New also
// checks; sniffing it here lets Open pick the right container reader
// before handing the file to either one.
const perfMagic = "PERFILE2"

// Document is one opened trace file, processed at most once, then
// read-only for the lifetime of the process (spec §5's "shared
// resources" guarantee: once built, the context may be read concurrently
// by multiple Analyze calls with no locking). mu serializes Open/Process
// against each other and against Close; Analyze holds it only while
// reading the built context, not while the analysis runs, since analyses
// over an already-built context are read-only and spec §5 explicitly
// allows them to run unlocked.
type Document struct {
	mu   sync.Mutex
	path string
	kind Kind

	closer io.Closer
	win    *wintrace.File
	lin    *linuxtrace.File

	builder   *tracecontext.Builder
	processed bool
}

// Kind reports which container Document was opened from.
func (d *Document) Kind() Kind { return d.kind }

// Path returns the file path Document was opened from.
func (d *Document) Path() string { return d.path }

// Processed reports whether Process has completed successfully.
func (d *Document) Processed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processed
}

// openDocument opens path, sniffing which trace container it holds
// (spec §6.1), and returns a Document with a populated header but no
// context yet built (spec §6.3's "Open a trace file").
func openDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.FileOpen, err, "opening %s", path)
	}

	var magic [8]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		f.Close()
		return nil, traceerr.Wrap(traceerr.Truncated, err, "reading %s magic", path)
	}

	if string(magic[:]) == perfMagic {
		lin, err := linuxtrace.New(f)
		if err != nil {
			f.Close()
			return nil, traceerr.Wrap(traceerr.MalformedContainer, err, "opening perf.data %s", path)
		}
		return &Document{path: path, kind: KindLinux, closer: f, lin: lin}, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, traceerr.Wrap(traceerr.FileOpen, err, "stat %s", path)
	}
	bufferSize, ptrSize, err := wintrace.SniffHeader(f)
	if err != nil {
		f.Close()
		return nil, traceerr.Wrap(traceerr.UnsupportedTrace, err, "%s is neither a perf.data nor an ETL trace", path)
	}
	win, err := wintrace.New(f, info.Size(), bufferSize, ptrSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Document{path: path, kind: KindWindows, closer: f, win: win}, nil
}

// process walks every record in the document once, building its context
// (spec §6.3's "Process a trace file" and "Build a context" — in this
// implementation the context is built incrementally as records are
// dispatched rather than as a separate pass, same as the teacher's own
// perfsession pipeline). Calling process more than once is a no-op; the
// core gives no operation for re-processing a document.
func (d *Document) process(listener progress.Listener, token *progress.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.processed {
		return nil
	}

	b := tracecontext.NewBuilder()
	var err error
	switch d.kind {
	case KindLinux:
		err = b.BuildFromLinux(d.lin, listener, token)
	case KindWindows:
		reg := dispatch.NewRegistry()
		b.RegisterWindows(reg, d.win.PtrSize)
		err = d.win.Walk(reg, listener, token)
	}
	if err != nil {
		return err
	}
	d.builder = b
	d.processed = true
	return nil
}

// Context returns the built context, or an error if Process has not
// completed yet.
func (d *Document) Context() (*tracecontext.Builder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.processed {
		return nil, fmt.Errorf("%s: %w", d.path, ErrNotProcessed)
	}
	return d.builder, nil
}

// analyze runs the stacks analyzer over the document's already-built
// context for one process (spec §6.3's "Analyze a process"). It locks d
// only inside Context, to read the builder; per spec §5 the context is
// read-only once built, so the analyses themselves run without the lock.
func (d *Document) analyze(process tracemodel.ProcessKey, filter stacksanalysis.Filter, resolver symbolresolve.Resolver, mapper *symbolresolve.PathMapper, listener progress.Listener, token *progress.Token) (*stacksanalysis.Analysis, error) {
	builder, err := d.Context()
	if err != nil {
		return nil, err
	}
	provider := samplesprovider.New(builder, resolver, mapper)
	return stacksanalysis.Analyze(provider, process, filter, listener, token)
}

// Close releases the document's underlying file. A Document must not be
// used after Close.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}
