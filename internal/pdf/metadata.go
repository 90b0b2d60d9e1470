// Package pdf extracts bibliographic hints from PDF files. Extraction
// is best effort: a PDF with no recognizable DOI or title yields empty
// fields, not an error.
package pdf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// doiPattern matches 10.<registrant>/<suffix> DOIs as they appear in
// running text.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// scanPages bounds how deep into the document the DOI search goes; a
// DOI is nearly always on the first page.
const scanPages = 3

// Metadata is what could be recovered from a PDF.
type Metadata struct {
	DOI   string
	Title string
}

// ExtractMetadata opens the PDF at path and scans its leading pages for
// a DOI and a plausible title line.
func ExtractMetadata(path string) (*Metadata, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	meta := &Metadata{}

	pages := r.NumPage()
	if pages > scanPages {
		pages = scanPages
	}

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if meta.DOI == "" {
			meta.DOI = findDOI(text)
		}
		if meta.Title == "" && i == 1 {
			meta.Title = findTitle(text)
		}
		if meta.DOI != "" && meta.Title != "" {
			break
		}
	}
	return meta, nil
}

func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if plausibleDOI(match) {
			return match
		}
	}
	return ""
}

func plausibleDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash > 0 && slash < len(doi)-1
}

// findTitle takes the first substantial line of the first page that
// does not look like a running header.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !headerLine(line) {
			return line
		}
	}
	return ""
}

func headerLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}
