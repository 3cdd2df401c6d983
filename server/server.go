package server

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gopherprof/tracecore/internal/logging"
	"github.com/gopherprof/tracecore/internal/progress"
	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/symbolresolve"
	"github.com/gopherprof/tracecore/tracecontext"
	"github.com/gopherprof/tracecore/tracemodel"
)

// DocumentID names one Document held open by a Server.
type DocumentID uint64

// defaultWorkers bounds how many documents a Server processes
// concurrently when no WithWorkers option is given.
const defaultWorkers = 4

// Server holds a bounded pool of workers (spec §5's "the surrounding
// server provides a thread pool and per-document serialization") plus
// the table of open documents each one operates on. The core itself
// never appears by name here: Server only sequences calls into
// tracecontext, wintrace/linuxtrace, and stacksanalysis, each of which
// stays single-threaded per document per spec §5's scheduling model.
type Server struct {
	logger   *zap.SugaredLogger
	resolver symbolresolve.Resolver
	mapper   *symbolresolve.PathMapper

	sem chan struct{} // bounds concurrent in-flight operations across documents

	mu     sync.Mutex
	nextID uint64
	docs   map[DocumentID]*Document
}

// Option configures a Server built by New.
type Option func(*Server)

// WithLogger sets the structured logger Server reports through. The
// default is a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithWorkers bounds how many documents may be opened or processed
// concurrently. n <= 0 is ignored.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithResolver sets the symbolresolve.Resolver used by Analyze. Without
// one, Analyze returns an error rather than silently resolving nothing.
func WithResolver(resolver symbolresolve.Resolver) Option {
	return func(s *Server) { s.resolver = resolver }
}

// WithPathMapper sets the PathMapper applied to module display names
// after the core's own NT-device normalization (spec §6.2's stated
// ordering). Optional; nil leaves names unmapped.
func WithPathMapper(mapper *symbolresolve.PathMapper) Option {
	return func(s *Server) { s.mapper = mapper }
}

// New builds a Server ready to open documents.
func New(opts ...Option) *Server {
	s := &Server{
		logger: logging.Nop(),
		docs:   make(map[DocumentID]*Document),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sem == nil {
		s.sem = make(chan struct{}, defaultWorkers)
	}
	return s
}

// acquire blocks until a worker slot is free, then returns a release
// function. It is the whole of Server's pooling: Open and Process each
// go through one; Context and Analyze do not.
func (s *Server) acquire() func() {
	s.sem <- struct{}{}
	return func() { <-s.sem }
}

// Open opens path (spec §6.3's "Open a trace file"), sniffing whether it
// is a Windows ETL or Linux perf.data container, and registers the
// resulting Document under a new DocumentID.
func (s *Server) Open(path string) (DocumentID, error) {
	release := s.acquire()
	defer release()

	doc, err := openDocument(path)
	if err != nil {
		s.logger.Errorw("open failed", "path", path, "error", err)
		return 0, err
	}

	s.mu.Lock()
	id := DocumentID(atomic.AddUint64(&s.nextID, 1))
	s.docs[id] = doc
	s.mu.Unlock()

	s.logger.Debugw("opened document", "id", id, "path", path, "kind", doc.Kind())
	return id, nil
}

// document returns the Document registered under id.
func (s *Server) document(id DocumentID) (*Document, error) {
	s.mu.Lock()
	doc, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("server: no such document %d", id)
	}
	return doc, nil
}

// Process walks every record in the document identified by id, building
// its context (spec §6.3's "Process a trace file"). It blocks for a free
// worker slot, then holds that slot for the whole walk; concurrent
// Process calls against different documents run in parallel up to the
// pool's configured size, while spec §5's per-document serialization is
// enforced by Document.process's own mutex.
func (s *Server) Process(id DocumentID, listener progress.Listener, token *progress.Token) error {
	doc, err := s.document(id)
	if err != nil {
		return err
	}

	release := s.acquire()
	defer release()

	s.logger.Debugw("processing document", "id", id, "path", doc.Path())
	if err := doc.process(listener, token); err != nil {
		s.logger.Errorw("process failed", "id", id, "error", err)
		return err
	}
	return nil
}

// Context returns the built context for the document identified by id
// (spec §6.3's "Build a context from a processed trace"). Once Process
// has completed, the context is read-only and this never blocks on the
// worker pool: spec §5 explicitly allows concurrent unlocked reads of a
// finished context.
func (s *Server) Context(id DocumentID) (*tracecontext.Builder, error) {
	doc, err := s.document(id)
	if err != nil {
		return nil, err
	}
	return doc.Context()
}

// Analyze runs the stacks analyzer for one process within the document
// identified by id (spec §6.3's "Analyze a process"), using the
// Server's configured Resolver and PathMapper. Like Context, this does
// not take a worker-pool slot: analyses read an already-built, read-only
// context and the analyzer has its own internal state, so they are
// exactly the concurrent case spec §5 calls out as requiring no
// additional locking.
func (s *Server) Analyze(id DocumentID, process tracemodel.ProcessKey, filter stacksanalysis.Filter, listener progress.Listener, token *progress.Token) (*stacksanalysis.Analysis, error) {
	doc, err := s.document(id)
	if err != nil {
		return nil, err
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("server: no SymbolResolver configured")
	}
	return doc.analyze(process, filter, s.resolver, s.mapper, listener, token)
}

// Close closes the document identified by id and removes it from the
// Server's table. Further calls with id return an error.
func (s *Server) Close(id DocumentID) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if ok {
		delete(s.docs, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("server: no such document %d", id)
	}
	return doc.Close()
}
