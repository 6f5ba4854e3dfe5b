package codex

import (
	"fmt"
	"strings"
)

const (
	patchBegin = "*** Begin Patch"
	patchEnd   = "*** End Patch"
)

type patchOp int

const (
	patchUpdate patchOp = iota
	patchAdd
	patchDelete
)

// filePatch is one file section of an apply_patch envelope.
type filePatch struct {
	op     patchOp
	path   string
	moveTo string
	lines  []string
}

// diff renders an update section as a unified-style diff.
func (f filePatch) diff() string {
	if len(f.lines) == 0 {
		return ""
	}
	target := f.path
	if f.moveTo != "" {
		target = f.moveTo
	}
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", f.path, target, strings.Join(f.lines, "\n"))
}

// body returns the content of an added file.
func (f filePatch) body() string {
	out := make([]string, 0, len(f.lines))
	for _, line := range f.lines {
		out = append(out, strings.TrimPrefix(line, "+"))
	}
	return strings.Join(out, "\n")
}

// parsePatch splits an apply_patch envelope into per-file sections.
func parsePatch(text string) []filePatch {
	var files []filePatch
	cur := -1

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, patchBegin), strings.HasPrefix(line, patchEnd),
			strings.HasPrefix(line, "*** End of File"):
			continue
		case strings.HasPrefix(line, "*** Add File: "):
			files = append(files, filePatch{op: patchAdd, path: strings.TrimSpace(strings.TrimPrefix(line, "*** Add File: "))})
			cur = len(files) - 1
		case strings.HasPrefix(line, "*** Delete File: "):
			files = append(files, filePatch{op: patchDelete, path: strings.TrimSpace(strings.TrimPrefix(line, "*** Delete File: "))})
			cur = len(files) - 1
		case strings.HasPrefix(line, "*** Update File: "):
			files = append(files, filePatch{op: patchUpdate, path: strings.TrimSpace(strings.TrimPrefix(line, "*** Update File: "))})
			cur = len(files) - 1
		case strings.HasPrefix(line, "*** Move to: "):
			if cur >= 0 {
				files[cur].moveTo = strings.TrimSpace(strings.TrimPrefix(line, "*** Move to: "))
			}
		default:
			if cur >= 0 {
				files[cur].lines = append(files[cur].lines, line)
			}
		}
	}
	return files
}

// extractPatch pulls an embedded patch envelope out of a shell command
// such as a heredoc passed to apply_patch.
func extractPatch(command string) (string, bool) {
	start := strings.Index(command, patchBegin)
	if start < 0 {
		return "", false
	}
	rest := command[start:]
	if end := strings.Index(rest, patchEnd); end >= 0 {
		return rest[:end+len(patchEnd)], true
	}
	return rest, true
}
