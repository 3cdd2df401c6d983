package symbolresolve

import "testing"

func TestDWARFResolverFallsBackWhenModuleHasNoDebugInfo(t *testing.T) {
	r := NewDWARFResolver()
	mod := ModuleInfo{Filename: "/nonexistent/a.so", Base: 0x1000}
	f := r.Resolve(mod, 0x1234)
	want := "/nonexistent/a.so!0x1234"
	if f.Symbol != want {
		t.Fatalf("Resolve synthesized symbol = %q, want %q", f.Symbol, want)
	}
	if f.ModuleName != mod.Filename {
		t.Fatalf("Resolve ModuleName = %q, want %q", f.ModuleName, mod.Filename)
	}
	if f.FilePath != "" || f.Line != 0 {
		t.Fatalf("unresolved frame should carry no location, got %+v", f)
	}
}

func TestDWARFResolverCachesPerModule(t *testing.T) {
	r := NewDWARFResolver()
	mod := ModuleInfo{Filename: "/nonexistent/a.so"}
	r.Resolve(mod, 1)
	r.Resolve(mod, 2)
	if len(r.tables) != 1 {
		t.Fatalf("expected one cached table per distinct filename, got %d", len(r.tables))
	}
}

func TestPathMapperFirstMatchingPrefixWins(t *testing.T) {
	m := NewPathMapper([]PrefixRule{
		{From: "/build/", To: "/src/"},
		{From: "/build/vendor/", To: "/vendor-src/"},
	})
	if got := m.Map("/build/vendor/lib.c"); got != "/src/vendor/lib.c" {
		t.Fatalf("Map = %q, want the first matching rule applied", got)
	}
	if got := m.Map("/other/path.c"); got != "/other/path.c" {
		t.Fatalf("Map with no matching rule = %q, want unchanged", got)
	}
}

func TestDemangleNamePassesThroughPlainNames(t *testing.T) {
	if got := demangleName("main.main"); got != "main.main" {
		t.Fatalf("demangleName on a non-mangled name = %q, want unchanged", got)
	}
}
