package parser

import (
	"strings"
	"unicode/utf8"
)

const maxFilenameBytes = 200

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename strips characters that are illegal in file names on
// common filesystems. The result has no extension added and may be empty.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		if r == utf8.RuneError {
			return -1
		}
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name)

	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = truncateBytes(cleaned, maxFilenameBytes)
	cleaned = strings.TrimRight(cleaned, ". ")

	stem, rest, hasExt := strings.Cut(cleaned, ".")
	if _, reserved := reservedNames[strings.ToUpper(strings.TrimSpace(stem))]; reserved {
		cleaned = stem + "_"
		if hasExt {
			cleaned += "." + rest
		}
	}
	return cleaned
}

func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
