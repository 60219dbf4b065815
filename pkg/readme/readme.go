// Package readme splices generated markdown into a document between two
// marker comments.
package readme

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Default markers delimiting the generated section.
const (
	DefaultStartMarker = "<!-- TOKENASH:START -->"
	DefaultEndMarker   = "<!-- TOKENASH:END -->"
)

var (
	// ErrMarkersNotFound is returned when the document lacks either marker.
	ErrMarkersNotFound = errors.New("markers not found")
	// ErrDocumentNotFound is returned when the target document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// Splice replaces everything from the first start marker through the first
// end marker after it with start, snippet and end on their own lines.
func Splice(doc, snippet, start, end string) (string, error) {
	i := strings.Index(doc, start)
	if i < 0 {
		return "", fmt.Errorf("start marker %q: %w", start, ErrMarkersNotFound)
	}
	j := strings.Index(doc[i+len(start):], end)
	if j < 0 {
		return "", fmt.Errorf("end marker %q: %w", end, ErrMarkersNotFound)
	}
	tail := i + len(start) + j + len(end)

	var b strings.Builder
	b.Grow(len(doc) + len(snippet))
	b.WriteString(doc[:i])
	b.WriteString(start)
	b.WriteString("\n")
	b.WriteString(snippet)
	b.WriteString("\n")
	b.WriteString(end)
	b.WriteString(doc[tail:])
	return b.String(), nil
}

// UpdateFile splices snippet into the document at path in place.
func UpdateFile(path, snippet, start, end string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrDocumentNotFound)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	out, err := Splice(string(data), snippet, start, end)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
