// Package parser extracts a movie code and a subtitle tag from a bare
// filename. Both functions are pure: no I/O, no panics.
package parser

import (
	"path/filepath"
	"regexp"
	"strings"
)

// movieCodeRx matches the first "AAA-123"-shaped code in a filename: 2-6
// letters, a hyphen, 1-5 digits.
var movieCodeRx = regexp.MustCompile(`[A-Za-z]{2,6}-\d{1,5}`)

// subtitleKeywords is checked in order; the first match wins.
var subtitleKeywords = []struct {
	keyword string
	label   string
}{
	{"english", "English Sub"},
	{"chinese", "Chinese Sub"},
	{"korean", "Korean Sub"},
	{"japanese", "Japanese Sub"},
}

// ExtractCode returns the first movie code found in the filename's basename,
// normalized to "AAA-123" uppercase form, or "" if none matches.
func ExtractCode(path string) string {
	base := filepath.Base(path)
	m := movieCodeRx.FindString(base)
	if m == "" {
		return ""
	}
	idx := strings.IndexByte(m, '-')
	return strings.ToUpper(m[:idx]) + "-" + m[idx+1:]
}

// DetectSubtitle scans the filename's basename for the first subtitle
// keyword match in priority order, defaulting to "No Sub".
func DetectSubtitle(path string) string {
	lower := strings.ToLower(filepath.Base(path))
	for _, kw := range subtitleKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.label
		}
	}
	return "No Sub"
}
