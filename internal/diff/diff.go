// Package diff renders line diffs of canonical snapshot JSON using the
// sergi/go-diff engine, grouped into hunks with context.
package diff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is a single line in a hunk.
type Line struct {
	Type    LineType
	Content string
}

// Hunk is a contiguous group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Diff is the full comparison between a recorded and an actual document.
type Diff struct {
	OldLabel string
	NewLabel string
	Hunks    []Hunk
}

// Empty reports whether the inputs were identical.
func (d *Diff) Empty() bool { return len(d.Hunks) == 0 }

// contextLines is the number of unchanged lines kept around each hunk.
const contextLines = 3

// Engine computes diffs, caching results for repeated input pairs (the
// review TUI re-renders the same pair on every resize).
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	mu    sync.Mutex
	cache map[[2]uint64]*Diff
}

// NewEngine returns a diff engine. The timeout is disabled: snapshot
// documents are small and accuracy matters more than latency.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp, cache: make(map[[2]uint64]*Diff)}
}

// Compute diffs two documents line by line.
func (e *Engine) Compute(oldLabel, newLabel, oldText, newText string) *Diff {
	key := [2]uint64{fnv1a(oldText), fnv1a(newText)}

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		out := *cached
		out.OldLabel = oldLabel
		out.NewLabel = newLabel
		return &out
	}
	e.mu.Unlock()

	// Line-level reduction avoids newline boundary artifacts when the
	// character diffs are converted back to line operations.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldText, newText)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	d := &Diff{
		OldLabel: oldLabel,
		NewLabel: newLabel,
		Hunks:    group(toLines(diffs)),
	}

	e.mu.Lock()
	e.cache[key] = d
	e.mu.Unlock()
	return d
}

// Render produces unified-diff-style text for terminal output.
func (e *Engine) Render(d *Diff) string {
	if d.Empty() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", d.OldLabel, d.NewLabel)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteString("+")
			case LineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// lineOp is a classified line with positions on both sides.
type lineOp struct {
	typ     LineType
	oldLine int // 0-based, -1 when absent
	newLine int
	content string
}

func toLines(diffs []diffmatchpatch.Diff) []lineOp {
	var ops []lineOp
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}
	return ops
}

// group folds line operations into hunks separated by stretches of
// unchanged lines longer than twice the context width.
func group(ops []lineOp) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(ops) {
		if ops[i].typ == LineContext {
			i++
			continue
		}

		// Found a change; open a hunk with leading context.
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i
		lastChange := i
		for end < len(ops) {
			if ops[end].typ != LineContext {
				lastChange = end
				end++
				continue
			}
			if end-lastChange >= contextLines*2 {
				break
			}
			end++
		}
		// Trim trailing context to the configured width.
		if end > lastChange+contextLines+1 {
			end = lastChange + contextLines + 1
		}

		h := Hunk{
			OldStart: ops[start].oldLine + 1,
			NewStart: ops[start].newLine + 1,
		}
		if ops[start].oldLine < 0 {
			h.OldStart = 0
		}
		if ops[start].newLine < 0 {
			h.NewStart = 0
		}
		for _, op := range ops[start:end] {
			h.Lines = append(h.Lines, Line{Type: op.typ, Content: op.content})
			if op.typ == LineRemoved || op.typ == LineContext {
				h.OldCount++
			}
			if op.typ == LineAdded || op.typ == LineContext {
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
		i = end
	}
	return hunks
}

// fnv1a hashes cache keys.
func fnv1a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
