package download

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\x7F]`)

// maxFilenameBytes keeps "<name>.txt" within the 255-byte filename limit
// of common filesystems.
const maxFilenameBytes = 255 - len(".txt")

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename removes characters that are illegal on common
// filesystems. It keeps spaces, case and non-Latin letters, so
// "12. Алиби: роман" becomes "12. Алиби роман". The result is NFC
// normalised and SanitizeFilename(SanitizeFilename(s)) == SanitizeFilename(s).
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "")
	sanitized = strings.Join(strings.Fields(sanitized), " ")
	sanitized = norm.NFC.String(sanitized)
	sanitized = truncateBytes(sanitized, maxFilenameBytes)
	sanitized = strings.TrimRight(sanitized, ". ")

	if _, reserved := reservedNames[strings.ToUpper(sanitized)]; reserved {
		sanitized = "_" + sanitized
	}
	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// truncateBytes cuts s to at most limit bytes on a rune boundary.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
