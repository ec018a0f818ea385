package diff

import (
	"bytes"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultMaxBytes is the largest file summarized
const DefaultMaxBytes = 1 << 20

// Summary describes the line changes between two versions of a file
type Summary struct {
	Added   int
	Removed int
	Patch   string
}

// Changed reports whether any line differs
func (s Summary) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

// Generator compares file contents
type Generator struct {
	dmp      *diffmatchpatch.DiffMatchPatch
	maxBytes int64
}

// NewDiffGenerator creates a new diff generator. maxBytes <= 0 uses DefaultMaxBytes.
func NewDiffGenerator(maxBytes int64) *Generator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Generator{
		dmp:      diffmatchpatch.New(),
		maxBytes: maxBytes,
	}
}

// Summarize counts added and removed lines between old and new content and
// renders a patch
func (dg *Generator) Summarize(oldContent, newContent string) Summary {
	oldChars, newChars, lines := dg.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dg.dmp.DiffCharsToLines(dg.dmp.DiffMain(oldChars, newChars, false), lines)

	var summary Summary
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			summary.Added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			summary.Removed += countLines(d.Text)
		}
	}

	patches := dg.dmp.PatchMake(oldContent, diffs)
	summary.Patch = dg.dmp.PatchToText(patches)
	return summary
}

// SummarizeFiles compares two files on disk. ok is false when either file is
// too large or looks binary.
func (dg *Generator) SummarizeFiles(oldPath, newPath string) (summary Summary, ok bool, err error) {
	oldData, ok, err := dg.readText(oldPath)
	if err != nil || !ok {
		return Summary{}, false, err
	}
	newData, ok, err := dg.readText(newPath)
	if err != nil || !ok {
		return Summary{}, false, err
	}
	return dg.Summarize(oldData, newData), true, nil
}

func (dg *Generator) readText(path string) (string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}
	if info.Size() > dg.maxBytes {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// countLines counts lines in a diff chunk, including an unterminated last line
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
