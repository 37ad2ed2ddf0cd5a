package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		expectErr bool
	}{
		{name: "http with port", url: "http://localhost:8080"},
		{name: "https", url: "https://api.github.com"},
		{name: "enterprise path", url: "https://github.example.com/api/v3"},
		{name: "query", url: "https://example.com?param=value"},
		{name: "javascript scheme", url: "javascript:alert('xss')", expectErr: true},
		{name: "file scheme", url: "file:///etc/passwd", expectErr: true},
		{name: "no scheme", url: "example.com", expectErr: true},
		{name: "no host", url: "http://", expectErr: true},
		{name: "space", url: "http://example.com/a b", expectErr: true},
		{name: "newline", url: "http://example.com\n", expectErr: true},
		{name: "empty", url: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"https://admin.example.com", "preview.example.com", "http://localhost:3000/"}

	assert.NoError(t, ValidateOrigin("https://admin.example.com", allowed))
	assert.NoError(t, ValidateOrigin("HTTPS://ADMIN.EXAMPLE.COM", allowed))
	assert.NoError(t, ValidateOrigin("https://preview.example.com", allowed), "host-only entries match any scheme")
	assert.NoError(t, ValidateOrigin("http://localhost:3000", allowed), "trailing slash is ignored")

	assert.Error(t, ValidateOrigin("", allowed))
	assert.Error(t, ValidateOrigin("https://evil.example.net", allowed))
	assert.Error(t, ValidateOrigin("ftp://admin.example.com", allowed))
	assert.Error(t, ValidateOrigin("https://admin.example.com", nil))
}

func TestContentPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: "content/pages/about.md", want: "content/pages/about.md"},
		{in: "/content/pages/about.md", want: "content/pages/about.md"},
		{in: "./content/blog/", want: "content/blog"},
		{in: `content\projects\deck.md`, want: "content/projects/deck.md"},
		{in: "content", want: "content"},
		{in: "", wantErr: "empty"},
		{in: "content/../main.go", wantErr: "traversal"},
		{in: "../etc/passwd", wantErr: "traversal"},
		{in: "content/./pages", wantErr: "empty segments"},
		{in: "content//pages", wantErr: "empty segments"},
		{in: "src/app.ts", wantErr: "under content/"},
		{in: "contentious/file.md", wantErr: "under content/"},
		{in: "C:/content/pages/a.md", wantErr: "relative"},
		{in: "content/pages/a\x00.md", wantErr: "control"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ContentPath(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeMessage(t *testing.T) {
	assert.Equal(t, "Update about page", SanitizeMessage("  Update about page\n"))
	assert.Equal(t, "Line one\n\tLine two", SanitizeMessage("Line one\n\tLine two"))
	assert.Equal(t, "bell", SanitizeMessage("be\x07ll\x00"))
	assert.Equal(t, "", SanitizeMessage("\x1b\x7f"))

	long := SanitizeMessage(strings.Repeat("é", MaxMessageLength))
	assert.LessOrEqual(t, len(long), MaxMessageLength)
	assert.True(t, strings.HasPrefix(long, "éé"))
	assert.False(t, strings.ContainsRune(long, '\uFFFD'))
}
