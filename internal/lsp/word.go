package lsp

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isIdentRune reports whether r can appear in a Sail identifier as the
// editor sees one: alphanumerics, underscore, and the `#`/`$` sigils used by
// builtin and preprocessor names.
func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '#' || r == '$'
}

// wordAt returns the maximal identifier run covering pos, or "" when the
// position does not touch one.
func wordAt(content string, pos position) string {
	line, ok := lineAt(content, pos.Line)
	if !ok {
		return ""
	}
	col := utf16ToByte(line, pos.Character)

	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}
	end := col
	for end < len(line) {
		r, size := utf8.DecodeRuneInString(line[end:])
		if !isIdentRune(r) {
			break
		}
		end += size
	}
	if start >= end {
		return ""
	}
	return line[start:end]
}

// wordPrefixAt returns the identifier run immediately left of pos, lowered
// for case-insensitive completion matching.
func wordPrefixAt(content string, pos position) string {
	line, ok := lineAt(content, pos.Line)
	if !ok {
		return ""
	}
	col := utf16ToByte(line, pos.Character)
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}
	return strings.ToLower(line[start:col])
}

// wordMatches finds boundary-checked occurrences of word in line, returning
// their byte offsets. A match is rejected when either adjacent character is
// itself an identifier character.
func wordMatches(line, word string) []int {
	if word == "" {
		return nil
	}
	var offsets []int
	for from := 0; ; {
		idx := strings.Index(line[from:], word)
		if idx < 0 {
			return offsets
		}
		at := from + idx
		ok := true
		if at > 0 {
			if r, _ := utf8.DecodeLastRuneInString(line[:at]); isIdentRune(r) {
				ok = false
			}
		}
		if after := at + len(word); after < len(line) {
			if r, _ := utf8.DecodeRuneInString(line[after:]); isIdentRune(r) {
				ok = false
			}
		}
		if ok {
			offsets = append(offsets, at)
		}
		from = at + len(word)
	}
}
