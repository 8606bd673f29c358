// Package diffpreview renders byte-stable unified diffs for plan previews.
// The diff text is part of the deterministic plan artifact surface: identical
// inputs must render identical bytes.
package diffpreview

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const contextLines = 3

type lineOpKind int

const (
	opEqual lineOpKind = iota
	opDelete
	opInsert
)

type lineOp struct {
	kind lineOpKind
	text string
}

// Unified renders a git-style unified diff for one file, or "" when the
// contents are identical.
func Unified(path string, before, after []byte) string {
	if string(before) == string(after) {
		return ""
	}

	ops := diffLines(string(before), string(after))
	hunks := buildHunks(ops)
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	beforeNoNL := len(before) > 0 && before[len(before)-1] != '\n'
	afterNoNL := len(after) > 0 && after[len(after)-1] != '\n'
	beforeTotal := countLines(string(before))
	afterTotal := countLines(string(after))

	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", hunkRange(h.oldStart, h.oldCount), hunkRange(h.newStart, h.newCount))

		oldLine := h.oldStart
		newLine := h.newStart
		for _, op := range h.ops {
			switch op.kind {
			case opEqual:
				b.WriteString(" " + op.text + "\n")
				if (beforeNoNL && oldLine == beforeTotal) || (afterNoNL && newLine == afterTotal) {
					b.WriteString("\\ No newline at end of file\n")
				}
				oldLine++
				newLine++
			case opDelete:
				b.WriteString("-" + op.text + "\n")
				if beforeNoNL && oldLine == beforeTotal {
					b.WriteString("\\ No newline at end of file\n")
				}
				oldLine++
			case opInsert:
				b.WriteString("+" + op.text + "\n")
				if afterNoNL && newLine == afterTotal {
					b.WriteString("\\ No newline at end of file\n")
				}
				newLine++
			}
		}
	}

	return b.String()
}

// diffLines computes a line-level edit script. A line-level reduction before
// the character diff avoids newline boundary artifacts when converting to
// line ops.
func diffLines(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		var kind lineOpKind
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			kind = opEqual
		case diffmatchpatch.DiffDelete:
			kind = opDelete
		case diffmatchpatch.DiffInsert:
			kind = opInsert
		}
		for _, line := range splitKeepingLast(d.Text) {
			ops = append(ops, lineOp{kind: kind, text: line})
		}
	}
	return ops
}

// splitKeepingLast splits text into lines without terminators, keeping a
// final unterminated line.
func splitKeepingLast(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func countLines(text string) int {
	return len(splitKeepingLast(text))
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []lineOp
}

// buildHunks groups changed lines with up to contextLines of surrounding
// context, merging hunks whose context would overlap.
func buildHunks(ops []lineOp) []hunk {
	changed := false
	for _, op := range ops {
		if op.kind != opEqual {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	// include[i] marks ops emitted into some hunk: every change plus up to
	// contextLines of surrounding equal lines.
	include := make([]bool, len(ops))
	lastChange := -1
	for i, op := range ops {
		if op.kind != opEqual {
			include[i] = true
			count := 0
			for j := i - 1; j >= 0 && count < contextLines; j-- {
				if include[j] {
					break
				}
				include[j] = true
				count++
			}
			lastChange = i
		} else if lastChange >= 0 && i-lastChange <= contextLines {
			include[i] = true
		}
	}

	var hunks []hunk
	oldLine, newLine := 1, 1
	var cur *hunk
	for i, op := range ops {
		if include[i] {
			if cur == nil {
				hunks = append(hunks, hunk{oldStart: oldLine, newStart: newLine})
				cur = &hunks[len(hunks)-1]
			}
			cur.ops = append(cur.ops, op)
			switch op.kind {
			case opEqual:
				cur.oldCount++
				cur.newCount++
			case opDelete:
				cur.oldCount++
			case opInsert:
				cur.newCount++
			}
		} else {
			cur = nil
		}

		switch op.kind {
		case opEqual:
			oldLine++
			newLine++
		case opDelete:
			oldLine++
		case opInsert:
			newLine++
		}
	}

	// Hunks with zero lines on one side start one line earlier by convention.
	for i := range hunks {
		if hunks[i].oldCount == 0 {
			hunks[i].oldStart--
		}
		if hunks[i].newCount == 0 {
			hunks[i].newStart--
		}
	}

	return hunks
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
