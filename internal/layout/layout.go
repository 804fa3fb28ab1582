package layout

import (
	"strings"
	"unicode/utf8"
)

// Print area used for the shirt mockup.
const (
	DefaultMaxWidth = 20
	DefaultMaxLines = 4
)

const truncationMarker = "-"

// MockupLayout is the text block printed on the shirt.
type MockupLayout struct {
	Lines     []string `json:"lines"`
	LineCount int      `json:"lineCount"`
}

// Compute wraps text for a maxWidth x maxLines print area.
func Compute(text string, maxWidth, maxLines int) MockupLayout {
	lines := Wrap(text, maxWidth, maxLines)
	return MockupLayout{Lines: lines, LineCount: len(lines)}
}

// Wrap greedily packs the whitespace-separated tokens of text into at most
// maxLines lines of at most maxWidth characters each. Widths are counted in runes.
//
// A token wider than maxWidth is cut to maxWidth-1 characters plus "-" on a line
// of its own; the rest of that token is discarded. Tokens left over once maxLines
// lines exist are dropped.
func Wrap(text string, maxWidth, maxLines int) []string {
	lines := make([]string, 0)
	if maxWidth <= 0 || maxLines <= 0 {
		return lines
	}

	var current string
	currentLen := 0

	for _, token := range strings.Fields(text) {
		if len(lines) >= maxLines {
			break
		}

		tokenLen := utf8.RuneCountInString(token)

		if tokenLen > maxWidth {
			if currentLen > 0 {
				lines = append(lines, current)
				current, currentLen = "", 0
				if len(lines) >= maxLines {
					break
				}
			}
			lines = append(lines, truncate(token, maxWidth))
			continue
		}

		switch {
		case currentLen == 0:
			current, currentLen = token, tokenLen
		case currentLen+1+tokenLen <= maxWidth:
			current += " " + token
			currentLen += 1 + tokenLen
		default:
			lines = append(lines, current)
			current, currentLen = token, tokenLen
		}
	}

	if currentLen > 0 && len(lines) < maxLines {
		lines = append(lines, current)
	}

	return lines
}

func truncate(token string, maxWidth int) string {
	runes := []rune(token)
	return string(runes[:maxWidth-1]) + truncationMarker
}
