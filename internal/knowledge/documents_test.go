package knowledge

import (
	"testing"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

func TestDocumentStore_LoadsSortedWithAliases(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "characters/bob.md", "Bob is a sailor.")
	writeFile(t, root, "characters/alice.md", "---\naliases: [Ali, The Cartographer]\n---\nAlice draws maps.\n")
	writeFile(t, root, "characters/notes.txt", "ignored")

	store := NewCharacterStore(NewLayout(root), nil)
	docs := store.Documents(t.Context())
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Name != "alice" || docs[1].Name != "bob" {
		t.Errorf("order = %s, %s", docs[0].Name, docs[1].Name)
	}
	if docs[0].Body != "Alice draws maps." {
		t.Errorf("body = %q", docs[0].Body)
	}
	names := docs[0].Names()
	if len(names) != 3 || names[1] != "Ali" || names[2] != "The Cartographer" {
		t.Errorf("names = %v", names)
	}

	res := store.Get(t.Context(), false)
	if len(res.Fragments) != 2 || res.Fragments[0].ID != "settings:characters/alice.md" {
		t.Errorf("fragments = %+v", res.Fragments)
	}
	if res.Fragments[0].Layer != ctxengine.LayerSettings {
		t.Errorf("layer = %q", res.Fragments[0].Layer)
	}
}

func TestDocumentStore_BadFrontmatterIsParseError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "settings/world.md", "---\naliases: [unclosed\n---\nbody")
	writeFile(t, root, "settings/city.md", "The city of Vell.")

	res := NewSettingsStore(NewLayout(root), nil).Get(t.Context(), false)
	if len(res.Fragments) != 1 || res.Fragments[0].ID != "settings:settings/city.md" {
		t.Errorf("fragments = %+v", res.Fragments)
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != ctxengine.CodeParseError || res.Errors[0].Path != "settings/world.md" {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestDocumentStore_MissingDirIsEmpty(t *testing.T) {
	t.Parallel()

	res := NewSettingsStore(NewLayout(t.TempDir()), nil).Get(t.Context(), false)
	if len(res.Fragments) != 0 || len(res.Errors) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestDocumentStore_Lookup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "settings/vell.md", "A port city.")
	writeFile(t, root, "settings/broken.md", "---\naliases: [unclosed\n---\n")
	store := NewSettingsStore(NewLayout(root), nil)

	doc, err := store.Lookup(t.Context(), "vell")
	if err != nil {
		t.Fatalf("Lookup(vell): %v", err)
	}
	if doc.Path != "settings/vell.md" {
		t.Errorf("path = %q", doc.Path)
	}

	if _, err := store.Lookup(t.Context(), "broken"); ctxengine.CodeOf(err) != ctxengine.CodeParseError {
		t.Errorf("Lookup(broken) code = %q", ctxengine.CodeOf(err))
	}
	if _, err := store.Lookup(t.Context(), "absent"); ctxengine.CodeOf(err) != ctxengine.CodeNotFound {
		t.Errorf("Lookup(absent) code = %q", ctxengine.CodeOf(err))
	}

	removeFile(t, root, "settings/vell.md")
	store.Invalidate()
	if _, err := store.Lookup(t.Context(), "vell"); ctxengine.CodeOf(err) != ctxengine.CodeNotFound {
		t.Errorf("Lookup after delete code = %q", ctxengine.CodeOf(err))
	}
}
