package fsx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic_CreatesParentAndReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "index.json")
	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the destination file, found %d entries", len(entries))
	}
}

func TestDigestJSON_IgnoresKeyOrder(t *testing.T) {
	t.Parallel()

	a, err := DigestJSON([]byte(`{"b":1,"a":[1,2]}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := DigestJSON([]byte("{\n  \"a\": [1, 2],\n  \"b\": 1\n}"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("digests differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
}

func TestDigestJSON_InvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := DigestJSON([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestWriteJSONAtomic_Canonical(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	v := map[string]any{"z": 1, "a": "x"}
	if err := WriteJSONAtomic(path, v, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "{\"a\":\"x\",\"z\":1}\n"; string(got) != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}
