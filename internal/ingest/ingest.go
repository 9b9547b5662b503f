// Package ingest extracts text from reference documents and splits it into
// overlapping chunks ready for embedding.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Chunk is one text fragment produced from a source document. Index is the
// fragment's position within its source file, starting at zero.
type Chunk struct {
	Source  string
	Index   int
	Content string
}

// FileResult records the outcome of processing a single file. Err is nil on
// success.
type FileResult struct {
	Path   string
	Chunks int
	Err    error
}

// Report summarizes a directory ingestion run.
type Report struct {
	Files  []FileResult
	Chunks []Chunk
}

// Failed returns the results for files that could not be processed.
func (r Report) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Processor turns documents into chunks.
type Processor struct {
	splitter Splitter
	logger   *slog.Logger
}

// NewProcessor creates a Processor with the given splitter.
func NewProcessor(splitter Splitter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{splitter: splitter, logger: logger}
}

// supported reports whether the file extension is a known document format.
func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// ProcessFile extracts and splits a single document. The source recorded on
// each chunk is the file's base name.
func (p *Processor) ProcessFile(path string) ([]Chunk, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".txt", ".md":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	default:
		return nil, fmt.Errorf("unsupported document format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	fragments := p.splitter.Split(text)
	chunks := make([]Chunk, 0, len(fragments))
	for i, frag := range fragments {
		chunks = append(chunks, Chunk{Source: source, Index: i, Content: frag})
	}

	p.logger.Debug("document processed", "path", path, "chunks", len(chunks))
	return chunks, nil
}

// ProcessDir processes every supported document directly under dir, in
// lexical order. Files that fail are recorded in the report and do not stop
// the run.
func (p *Processor) ProcessDir(dir string) (Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Report{}, fmt.Errorf("reading document directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var report Report
	for _, path := range paths {
		chunks, err := p.ProcessFile(path)
		if err != nil {
			p.logger.Warn("document skipped", "path", path, "error", err)
			report.Files = append(report.Files, FileResult{Path: path, Err: err})
			continue
		}
		report.Files = append(report.Files, FileResult{Path: path, Chunks: len(chunks)})
		report.Chunks = append(report.Chunks, chunks...)
	}

	return report, nil
}
