package download

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLabelRunes = 50

var (
	unsafeLabel  = regexp.MustCompile(`[^\w\s.-]`)
	unsafeFolder = regexp.MustCompile(`[^\w\s]`)

	downloadableMarkers = []string{
		".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
		".zip", ".rar", ".7z", ".txt", ".rtf", ".png", ".jpg", ".jpeg",
		"download",
	}
)

// IsDownloadable reports whether href looks like a file link.
func IsDownloadable(href string) bool {
	lower := strings.ToLower(href)
	for _, m := range downloadableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// FileLabel turns link text into a filename prefix of at most 50 runes.
func FileLabel(text string) string {
	s := unsafeLabel.ReplaceAllString(strings.TrimSpace(text), "_")
	if r := []rune(s); len(r) > maxLabelRunes {
		s = string(r[:maxLabelRunes])
	}
	return s
}

// FolderName folds accents and replaces everything but word characters and
// whitespace with '_'.
func FolderName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	s := unsafeFolder.ReplaceAllString(strings.TrimSpace(folded), "_")
	if s == "" {
		return "untitled"
	}
	return s
}
