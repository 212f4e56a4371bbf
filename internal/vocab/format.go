package vocab

import (
	"html"
	"regexp"
	"strings"
)

var (
	reBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic = regexp.MustCompile(`\*(.*?)\*`)
)

// HTML renders **bold**, *italic* and line breaks as HTML. The input is
// escaped first, so model output cannot inject markup of its own.
func HTML(text string) string {
	out := html.EscapeString(text)
	out = reBold.ReplaceAllString(out, "<strong>$1</strong>")
	out = reItalic.ReplaceAllString(out, "<em>$1</em>")
	return strings.ReplaceAll(out, "\n", "<br>")
}

// Plain strips the bold and italic markers, for terminal output.
func Plain(text string) string {
	out := reBold.ReplaceAllString(text, "$1")
	return reItalic.ReplaceAllString(out, "$1")
}
