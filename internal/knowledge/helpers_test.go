package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFile writes content to <root>/.writenow/<rel>, creating directories.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, DirName, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func removeFile(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(root, DirName, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

const validTerminology = `{"terms":[{"term":"Aether","definition":"the sky-sea"}]}`

const validConstraints = `{"rules":["no anachronisms",{"text":"Alice never lies","severity":"must"}]}`
