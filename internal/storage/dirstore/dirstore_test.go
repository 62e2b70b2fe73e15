package dirstore

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

type testMeta struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestWriteReadMeta(t *testing.T) {
	ds := New(t.TempDir(), nil)
	id := "abc123"

	if err := ds.EnsureDir(id); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	want := testMeta{Name: "hello", Value: 42}
	if err := ds.WriteMeta(id, want); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	var got testMeta
	if err := ds.ReadMeta(id, &got); err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if got != want {
		t.Errorf("ReadMeta = %+v, want %+v", got, want)
	}

	if _, err := os.Stat(filepath.Join(ds.Dir(id), "meta.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestReadMetaNotFound(t *testing.T) {
	errWidget := errors.New("widget not found")
	ds := New(t.TempDir(), errWidget)

	var out testMeta
	err := ds.ReadMeta("nonexistent", &out)
	if !errors.Is(err, errWidget) {
		t.Fatalf("expected errWidget, got %v", err)
	}

	def := New(t.TempDir(), nil)
	if err := def.ReadMeta("nope", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIDs(t *testing.T) {
	base := t.TempDir()
	ds := New(base, nil)

	for _, id := range []string{"b", "a", "c"} {
		if err := ds.EnsureDir(id); err != nil {
			t.Fatalf("EnsureDir(%s): %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ds.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Errorf("IDs = %v, want [a b c]", ids)
	}
}

func TestIDsNonExistent(t *testing.T) {
	ds := New(filepath.Join(t.TempDir(), "missing"), nil)

	ids, err := ds.IDs()
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if ids != nil {
		t.Errorf("IDs = %v, want nil", ids)
	}
}

func TestAppendAndLoadJSONL(t *testing.T) {
	ds := New(t.TempDir(), nil)
	id := "rec"
	if err := ds.EnsureDir(id); err != nil {
		t.Fatal(err)
	}

	for i, name := range []string{"one", "two"} {
		if err := ds.AppendJSONL(id, "items.jsonl", testMeta{Name: name, Value: i}); err != nil {
			t.Fatalf("AppendJSONL: %v", err)
		}
	}

	// A corrupted line is skipped on load.
	f, err := os.OpenFile(filepath.Join(ds.Dir(id), "items.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{broken\n")
	f.Close()

	items, err := LoadJSONL[testMeta](ds, id, "items.jsonl")
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if len(items) != 2 || items[0].Name != "one" || items[1].Value != 1 {
		t.Errorf("items = %+v", items)
	}
}

func TestLoadJSONLEmpty(t *testing.T) {
	ds := New(t.TempDir(), nil)

	items, err := LoadJSONL[testMeta](ds, "none", "items.jsonl")
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if items != nil {
		t.Errorf("items = %v, want nil", items)
	}
}
