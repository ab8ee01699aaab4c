package note

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFilenameLength caps note filenames, in runes.
	MaxFilenameLength = 100
	// MaxAttachmentPrefixLength caps the note-name prefix of attachment files.
	MaxAttachmentPrefixLength = 50

	untitled = "untitled"
)

var (
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
)

// SanitizeFilename turns a title into a filename without path separators or
// reserved characters. It is idempotent.
func SanitizeFilename(title string) string {
	return sanitize(title, MaxFilenameLength)
}

// AttachmentPrefix is the sanitized, shortened note name used to name images.
func AttachmentPrefix(noteFilename string) string {
	return sanitize(noteFilename, MaxAttachmentPrefixLength)
}

func sanitize(title string, maxRunes int) string {
	s := reservedChars.ReplaceAllString(title, "-")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// Trim again after cutting so a space at the cut point cannot break
	// idempotence.
	s = strings.TrimSpace(truncateRunes(s, maxRunes))
	if s == "" {
		return untitled
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
