package content

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultExcerptLength is the excerpt size used when none is given.
const DefaultExcerptLength = 160

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases title, folds accented letters to ASCII, drops anything
// outside [a-z0-9-] and turns whitespace runs into single hyphens. The result
// never starts or ends with a hyphen and Slugify(Slugify(s)) == Slugify(s).
func Slugify(title string) string {
	folded, _, err := transform.String(foldAccents, title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))

	pendingHyphen := false
	for _, r := range folded {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}

	return b.String()
}

var markdownRules = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
	{regexp.MustCompile(`!\[(.*?)\]\(.*?\)`), "$1"},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`\[(.*?)\]\(.*?\)`), "$1"},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`(?m)^>\s?`), ""},
}

// Excerpt renders markdown as plain text and truncates it to maxLen runes on
// a word boundary. "..." is appended only when text was cut.
func Excerpt(markdown string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultExcerptLength
	}

	plain := stripHTML(markdown)
	for _, rule := range markdownRules {
		plain = rule.pattern.ReplaceAllString(plain, rule.replace)
	}
	plain = strings.Join(strings.Fields(plain), " ")

	text := []rune(plain)
	if len(text) <= maxLen {
		return plain
	}

	truncated := string(text[:maxLen])
	if i := strings.LastIndex(truncated, " "); i > 0 {
		return truncated[:i] + "..."
	}
	return truncated + "..."
}

// stripHTML keeps only the text nodes of any inline HTML in s.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

var categoryLabels = map[Category]string{
	CategoryKitchen:    "Kitchen Remodeling",
	CategoryBathroom:   "Bathroom Renovation",
	CategoryAddition:   "Home Additions",
	CategoryRenovation: "Home Renovation",
	CategoryExterior:   "Exterior Work",
	CategoryCommercial: "Commercial Projects",
}

// CategoryLabel returns the display name for a project category.
func CategoryLabel(c Category) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(c), "-", " "))
}
