package knowledge

import (
	"errors"
	"strings"
)

// ErrNoFrontmatter is returned when a document does not open with "---".
var ErrNoFrontmatter = errors.New("knowledge: missing YAML frontmatter")

// splitFrontmatter splits content into YAML frontmatter and body.
// The content must begin with "---\n" and have a closing "---" line.
func splitFrontmatter(content string) (front, body string, err error) {
	const delimiter = "---"

	content = strings.TrimLeft(strings.ReplaceAll(content, "\r\n", "\n"), "\ufeff \t\n")
	if !strings.HasPrefix(content, delimiter) {
		return "", "", ErrNoFrontmatter
	}

	rest := content[len(delimiter):]
	if len(rest) == 0 || rest[0] != '\n' {
		return "", "", ErrNoFrontmatter
	}
	rest = rest[1:]

	var idx int
	if strings.HasPrefix(rest, delimiter) {
		idx = 0
	} else if i := strings.Index(rest, "\n"+delimiter); i >= 0 {
		idx = i + 1
	} else {
		return "", "", ErrNoFrontmatter
	}

	front = rest[:idx]
	body = strings.TrimPrefix(rest[idx+len(delimiter):], "\n")
	return front, body, nil
}
