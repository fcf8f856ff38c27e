package lsp

import "strings"

// byteToUTF16 converts a byte offset within one line to the UTF-16 code-unit
// column the editor protocol uses.
func byteToUTF16(line string, byteOff int) int {
	units := 0
	for i, r := range line {
		if i >= byteOff {
			return units
		}
		units += utf16Len(r)
	}
	return units
}

// utf16ToByte converts a UTF-16 code-unit column back to the byte offset of
// the same boundary. Columns past the end of the line clamp to len(line).
func utf16ToByte(line string, col int) int {
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += utf16Len(r)
	}
	return len(line)
}

func utf16Len(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}

// utf16Width is the UTF-16 length of a whole line.
func utf16Width(line string) int {
	units := 0
	for _, r := range line {
		units += utf16Len(r)
	}
	return units
}

// offsetForPosition maps an editor position to a byte offset into content.
// Lines past the end of the document map to len(content).
func offsetForPosition(content string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	lineStart := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(content[lineStart:], '\n')
		if next < 0 {
			return len(content)
		}
		lineStart += next + 1
	}
	lineEnd := len(content)
	if next := strings.IndexByte(content[lineStart:], '\n'); next >= 0 {
		lineEnd = lineStart + next
	}
	return lineStart + utf16ToByte(content[lineStart:lineEnd], pos.Character)
}

// lineAt returns line n of content without its terminator.
func lineAt(content string, n int) (string, bool) {
	if n < 0 {
		return "", false
	}
	for i, line := range strings.Split(content, "\n") {
		if i == n {
			return line, true
		}
	}
	return "", false
}

// applyChanges applies incremental content changes in arrival order. A change
// without a range replaces the whole document.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := offsetForPosition(text, change.Range.End)
		if start > end || end > len(text) {
			continue
		}
		text = text[:start] + change.Text + text[end:]
	}
	return text
}
