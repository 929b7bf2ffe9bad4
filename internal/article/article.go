// Package article turns input sources into plain text ready for evaluation:
// local files (plain text or PDF) and web pages.
package article

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Article is extracted evaluation input. Title may be empty when the source
// carries none; callers fall back to a derived title.
type Article struct {
	Title   string
	Content string
}

// FromFile reads a local file and extracts its text. PDF files are parsed;
// everything else is treated as plain text. The file name (without
// extension) becomes the title.
func FromFile(path string) (Article, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Article{}, fmt.Errorf("read file: %w", err)
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := FromPDF(content)
		if err != nil {
			return Article{}, err
		}
		return Article{Title: title, Content: text}, nil
	}

	if !utf8.Valid(content) {
		return Article{}, fmt.Errorf("file %s is not valid UTF-8 text", filepath.Base(path))
	}
	return Article{Title: title, Content: string(content)}, nil
}

// FromPDF extracts the plain text of every page.
func FromPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}
