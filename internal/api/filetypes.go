package api

import (
	"path/filepath"
	"strings"
)

// supportedExtensions is the set of file types the AnythingLLM
// collector can ingest as text. Spreadsheets, slides and media are
// left out: xlsx yields little usable text and pptx uploads fail with
// "No text content found".
var supportedExtensions = map[string]struct{}{
	"txt": {}, "md": {}, "org": {}, "adoc": {}, "rst": {},
	"html": {}, "docx": {}, "odt": {}, "odp": {}, "pdf": {},
	"mbox": {}, "epub": {}, "js": {}, "j2": {}, "py": {},
	"java": {}, "sh": {}, "json": {}, "yaml": {}, "yml": {},
	"sql": {}, "toml": {}, "csv": {}, "tsv": {}, "ini": {},
	"conf": {}, "log": {}, "cfg": {}, "properties": {}, "xml": {},
	"jsonl": {},
}

// SupportedFileType reports whether path's extension is uploadable.
func SupportedFileType(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := supportedExtensions[ext]
	return ok
}
