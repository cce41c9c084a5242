package output

import (
	"bytes"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff of two rule plans, or "" when they match.
// Run id and generation time are ignored.
func Diff(a, b *Document, fromFile, toFile string) (string, error) {
	textA, err := normalized(a)
	if err != nil {
		return "", err
	}
	textB, err := normalized(b)
	if err != nil {
		return "", err
	}
	if textA == textB {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA),
		B:        difflib.SplitLines(textB),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
}

func normalized(doc *Document) (string, error) {
	d := *doc
	d.RunID = ""
	d.GeneratedAt = time.Time{}
	var buf bytes.Buffer
	if err := WriteDocument(&buf, &d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
