package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Kitchen Remodeling Services", "kitchen-remodeling-services"},
		{"Bathroom Renovation & Design", "bathroom-renovation-design"},
		{"  Home   Additions  ", "home-additions"},
		{"Custom Work - Premium Quality!", "custom-work-premium-quality"},
		{"Café Renovation", "cafe-renovation"},
		{"snake_case", "snakecase"},
		{"", ""},
		{"   ", ""},
		{"123", "123"},
		{"---", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got := Slugify(tc.input)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, got, Slugify(got))
		})
	}
}

func TestExcerpt(t *testing.T) {
	markdown := "# Heading\n\nThis is **bold text** and *italic text* with a [link](http://example.com).\n\nHere's another paragraph with `code` formatting."

	assert.Equal(t, "Heading This is bold text and italic text with a...", Excerpt(markdown, 50))

	short := "Short content"
	assert.Equal(t, short, Excerpt(short, 100))

	assert.Equal(t, "Intro text and more", Excerpt("<p>Intro <em>text</em></p>\n<p>and more</p>", 100))

	long := strings.Repeat("word ", 60)
	out := Excerpt(long, 0)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len([]rune(out)), DefaultExcerptLength+3)

	assert.Equal(t, "abcdefghij...", Excerpt(strings.Repeat("abcdefghij", 3), 10))
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "Kitchen Remodeling", CategoryLabel(CategoryKitchen))
	assert.Equal(t, "Commercial Projects", CategoryLabel(CategoryCommercial))
	assert.Equal(t, "Outdoor Living", CategoryLabel(Category("outdoor-living")))
}

func TestSplitFrontMatter(t *testing.T) {
	doc, err := SplitFrontMatter("---\r\ntitle: Hello\r\n---\r\nBody\r\n")
	assert.NoError(t, err)
	assert.Equal(t, FormatYAML, doc.Format)
	assert.Equal(t, "Hello", doc.Data["title"])
	assert.Equal(t, "Body\n", doc.Body)

	doc, err = SplitFrontMatter("Just markdown")
	assert.NoError(t, err)
	assert.Equal(t, FormatNone, doc.Format)
	assert.Empty(t, doc.Data)
	assert.Equal(t, "Just markdown", doc.Body)

	doc, err = SplitFrontMatter("---\n---\nOnly body")
	assert.NoError(t, err)
	assert.Empty(t, doc.Data)
	assert.Equal(t, "Only body", doc.Body)

	doc, err = SplitFrontMatter("---\nrule: \"---x\"\n---\nrest")
	assert.NoError(t, err)
	assert.Equal(t, "---x", doc.Data["rule"])
	assert.Equal(t, "rest", doc.Body)

	doc, err = SplitFrontMatter("\uFEFF---\ntitle: Marked\n---\nBody")
	assert.NoError(t, err)
	assert.Equal(t, FormatYAML, doc.Format)
	assert.Equal(t, "Marked", doc.Data["title"])
	assert.Equal(t, "Body", doc.Body)
}
