package content

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/gitcms/internal/errors"
)

// Format is the front-matter encoding of a document.
type Format string

const (
	FormatNone Format = ""
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Document is a raw file split into front matter and body.
type Document struct {
	Format Format
	Data   map[string]interface{}
	Body   string
}

var fences = []struct {
	delim  string
	format Format
}{
	{"---", FormatYAML},
	{"+++", FormatTOML},
}

// SplitFrontMatter separates a leading fenced front-matter block from the
// markdown body. YAML uses "---" fences and TOML uses "+++". A document
// without a fence has empty data and the whole input as body.
func SplitFrontMatter(raw string) (Document, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	for _, f := range fences {
		if !strings.HasPrefix(raw, f.delim+"\n") && raw != f.delim {
			continue
		}

		rest := strings.TrimPrefix(raw, f.delim)
		rest = strings.TrimPrefix(rest, "\n")

		head, body, found := cutFence(rest, f.delim)
		if !found {
			return Document{}, errors.NewValidationError(errors.ErrCodeFrontMatter,
				fmt.Sprintf("unterminated %s front matter", f.format), nil)
		}

		data, err := decodeData(head, f.format)
		if err != nil {
			return Document{}, err
		}

		return Document{
			Format: f.format,
			Data:   data,
			Body:   strings.TrimPrefix(body, "\n"),
		}, nil
	}

	return Document{Format: FormatNone, Data: map[string]interface{}{}, Body: raw}, nil
}

// cutFence splits s at the first line consisting solely of delim.
func cutFence(s, delim string) (head, body string, found bool) {
	if strings.HasPrefix(s, delim+"\n") || s == delim {
		return "", strings.TrimPrefix(s, delim), true
	}

	marker := "\n" + delim
	offset := 0
	for {
		i := strings.Index(s[offset:], marker)
		if i < 0 {
			return "", "", false
		}
		end := offset + i + len(marker)
		if end == len(s) || s[end] == '\n' {
			return s[:offset+i+1], s[end:], true
		}
		offset = end
	}
}

// DecodeData parses a whole document as structured data, used for settings
// files stored without fences.
func DecodeData(raw string, format Format) (map[string]interface{}, error) {
	return decodeData(raw, format)
}

func decodeData(raw string, format Format) (map[string]interface{}, error) {
	data := map[string]interface{}{}

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(raw, &data); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeFrontMatter, "invalid TOML front matter", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(raw), &data); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeFrontMatter, "invalid YAML front matter", err)
		}
		if data == nil {
			data = map[string]interface{}{}
		}
	}

	return data, nil
}

// Marshal renders a record back into a front-matter document with body.
func Marshal(front interface{}, body string) (string, error) {
	out, err := yaml.Marshal(front)
	if err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String(), nil
}
