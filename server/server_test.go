package server

import (
	"testing"

	"github.com/gopherprof/tracecore/stacksanalysis"
	"github.com/gopherprof/tracecore/tracecontext"
)

func TestNewDefaultsWorkerPool(t *testing.T) {
	s := New()
	if cap(s.sem) != defaultWorkers {
		t.Fatalf("default pool size = %d, want %d", cap(s.sem), defaultWorkers)
	}
}

func TestWithWorkersOverridesPoolSize(t *testing.T) {
	s := New(WithWorkers(2))
	if cap(s.sem) != 2 {
		t.Fatalf("pool size = %d, want 2", cap(s.sem))
	}
}

func TestWithWorkersIgnoresNonPositive(t *testing.T) {
	s := New(WithWorkers(0))
	if cap(s.sem) != defaultWorkers {
		t.Fatalf("WithWorkers(0) changed the pool size to %d, want default %d", cap(s.sem), defaultWorkers)
	}
}

func TestUnknownDocumentOperationsError(t *testing.T) {
	s := New()
	const bogus DocumentID = 999

	if err := s.Process(bogus, nil, nil); err == nil {
		t.Error("Process(bogus): expected error, got nil")
	}
	if _, err := s.Context(bogus); err == nil {
		t.Error("Context(bogus): expected error, got nil")
	}
	if _, err := s.Analyze(bogus, 0, stacksanalysis.Filter{}, nil, nil); err == nil {
		t.Error("Analyze(bogus): expected error, got nil")
	}
	if err := s.Close(bogus); err == nil {
		t.Error("Close(bogus): expected error, got nil")
	}
}

// register inserts doc directly into s's document table, bypassing Open,
// so tests can exercise Process/Context/Analyze/Close bookkeeping without
// constructing a real trace file.
func register(s *Server, doc *Document) DocumentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := DocumentID(s.nextID)
	s.docs[id] = doc
	return id
}

func TestRegisterAssignsDistinctIDsAndCloseRemoves(t *testing.T) {
	s := New()
	id1 := register(s, &Document{path: "a.etl", kind: KindWindows})
	id2 := register(s, &Document{path: "b.etl", kind: KindWindows})
	if id1 == id2 {
		t.Fatalf("register returned the same id twice: %v", id1)
	}

	if err := s.Close(id1); err != nil {
		t.Fatalf("Close(id1): %v", err)
	}
	if err := s.Close(id1); err == nil {
		t.Fatal("Close(id1) a second time: expected error, got nil")
	}
	if err := s.Close(id2); err != nil {
		t.Fatalf("Close(id2): %v", err)
	}
}

func TestContextBeforeProcessErrors(t *testing.T) {
	s := New()
	id := register(s, &Document{path: "a.etl", kind: KindWindows})
	if _, err := s.Context(id); err == nil {
		t.Fatal("Context before Process: expected error, got nil")
	}
}

func TestAnalyzeRequiresResolver(t *testing.T) {
	s := New()
	id := register(s, &Document{
		path:      "a.etl",
		kind:      KindWindows,
		builder:   tracecontext.NewBuilder(),
		processed: true,
	})
	if _, err := s.Analyze(id, 0, stacksanalysis.Filter{}, nil, nil); err == nil {
		t.Fatal("Analyze with no configured Resolver: expected error, got nil")
	}
}

func TestAnalyzeWithResolverRunsOverBuiltContext(t *testing.T) {
	s := New(WithResolver(stubResolver{}))
	builder := tracecontext.NewBuilder()
	proc := builder.StartProcess(100, 0, "a.exe", "")
	id := register(s, &Document{
		path:      "a.etl",
		kind:      KindWindows,
		builder:   builder,
		processed: true,
	})
	analysis, err := s.Analyze(id, proc.Key, stacksanalysis.Filter{}, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis == nil {
		t.Fatal("Analyze returned a nil *Analysis with no error")
	}
}
