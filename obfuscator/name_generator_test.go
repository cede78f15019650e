package obfuscator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/google/go-cmp/cmp"
)

func TestSequentialNames_SkipsTaken(t *testing.T) {
	t.Parallel()

	g, err := newNameGenerator(NamingSequential, "C", 0, hashset.New("C1", "C3"))
	if err != nil {
		t.Fatal(err)
	}
	if pkg := g.packageName(); pkg != "" {
		t.Errorf("packageName() = %q, want default package", pkg)
	}
	got := []string{g.className(""), g.className(""), g.className("com/x"), g.className("")}
	if diff := cmp.Diff([]string{"C0", "C2", "com/x/C3", "C4"}, got); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestNaturalNames_DeterministicAndUnique(t *testing.T) {
	t.Parallel()

	generate := func(seed int64) []string {
		g := NewNaturalNameGenerator(seed, hashset.New("com/example/App"))
		var names []string
		for range 20 {
			pkg := g.GeneratePackageName()
			if pkg == "com/example" {
				t.Errorf("GeneratePackageName() reused existing package %q", pkg)
			}
			for range 25 {
				names = append(names, g.GenerateClassName(pkg))
			}
		}
		return names
	}

	first := generate(99)
	if diff := cmp.Diff(first, generate(99)); diff != "" {
		t.Errorf("same seed gave different names (-first +second):\n%s", diff)
	}
	seen := map[string]bool{}
	for _, name := range first {
		if seen[name] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = true
		if strings.Count(name, "/") < 1 {
			t.Errorf("name %q has no package", name)
		}
	}
}

func TestNewNameGenerator_Unknown(t *testing.T) {
	t.Parallel()

	if _, err := newNameGenerator("random", "C", 0, hashset.New()); err == nil {
		t.Error("newNameGenerator() error = nil, want error")
	}
}

func TestWriteMapping(t *testing.T) {
	t.Parallel()

	table := newSymbolTable()
	table.put("com/example/App", "C0")
	table.put("com/example/Util", "svc/impl/FetchClient")
	table.freeze()

	var buf bytes.Buffer
	if err := WriteMapping(&buf, table); err != nil {
		t.Fatal(err)
	}
	want := "com.example.App -> C0:\ncom.example.Util -> svc.impl.FetchClient:\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteMapping() mismatch (-want +got):\n%s", diff)
	}
}

func TestSymbolTable_PutAfterFreezePanics(t *testing.T) {
	t.Parallel()

	table := newSymbolTable()
	table.freeze()
	defer func() {
		if recover() == nil {
			t.Error("put after freeze did not panic")
		}
	}()
	table.put("a/B", "C0")
}
