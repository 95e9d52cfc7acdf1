// Package metadata extracts structured fields from document headers and
// persists metadata records: a Postgres table as the structured store, an
// append-only CSV audit log, and an optional Redis hash mirror. Saves are
// last-write-wins per document across every representation.
package metadata

import (
	"regexp"
	"strings"
)

// Record is the metadata extracted for one document. Absent fields are empty
// strings; extraction never fails outright.
type Record struct {
	DocID    int
	Title    string
	Author   string
	Language string
	BodyPath string
}

var (
	titleRe    = regexp.MustCompile(`(?im)^\s*Title:\s*(.+)$`)
	authorRe   = regexp.MustCompile(`(?im)^\s*Author:\s*(.+)$`)
	languageRe = regexp.MustCompile(`(?im)^\s*Language:\s*(.+)$`)
)

// Extract pulls the first Title/Author/Language line out of header, matched
// case-insensitively, and pairs the result with the document's body location.
func Extract(id int, header, bodyPath string) Record {
	return Record{
		DocID:    id,
		Title:    firstMatch(titleRe, header),
		Author:   firstMatch(authorRe, header),
		Language: firstMatch(languageRe, header),
		BodyPath: bodyPath,
	}
}

func firstMatch(re *regexp.Regexp, header string) string {
	m := re.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
