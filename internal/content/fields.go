package content

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/conneroisu/gitcms/internal/errors"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
	phonePattern = regexp.MustCompile(`^[\+]?[1-9][\d]{0,15}$`)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
}

// fields reads typed values out of decoded front matter, recording every
// violation in a shared collector instead of stopping at the first.
type fields struct {
	data   map[string]interface{}
	prefix string
	errs   *errors.FieldCollector
}

func newFields(data map[string]interface{}, errs *errors.FieldCollector) *fields {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &fields{data: data, errs: errs}
}

func (f *fields) name(key string) string {
	if f.prefix == "" {
		return key
	}
	return f.prefix + "." + key
}

func (f *fields) fail(key, msg string) {
	f.errs.Add(f.name(key), msg)
}

func (f *fields) has(key string) bool {
	v, ok := f.data[key]
	return ok && v != nil
}

// object returns a reader over a nested mapping. A missing mapping is
// reported when required.
func (f *fields) object(key string, required bool) *fields {
	child := &fields{data: map[string]interface{}{}, prefix: f.name(key), errs: f.errs}

	v, ok := f.data[key]
	if !ok || v == nil {
		if required {
			f.fail(key, "Required")
		}
		return child
	}

	m, ok := toMap(v)
	if !ok {
		f.fail(key, "Expected object")
		return child
	}
	child.data = m
	return child
}

// list returns readers over each mapping in a sequence.
func (f *fields) list(key string) ([]*fields, bool) {
	v, ok := f.data[key]
	if !ok || v == nil {
		return nil, false
	}

	items, ok := toSlice(v)
	if !ok {
		f.fail(key, "Expected array")
		return nil, true
	}

	out := make([]*fields, 0, len(items))
	for i, item := range items {
		name := fmt.Sprintf("%s[%d]", f.name(key), i)
		m, ok := toMap(item)
		if !ok {
			f.errs.Add(name, "Expected object")
			continue
		}
		out = append(out, &fields{data: m, prefix: name, errs: f.errs})
	}
	return out, true
}

// toSlice accepts YAML sequences and TOML arrays, including arrays of
// tables which TOML decodes as []map[string]interface{}.
func toSlice(v interface{}) ([]interface{}, bool) {
	switch items := v.(type) {
	case []interface{}:
		return items, true
	case []map[string]interface{}:
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	case []string:
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// optString returns the string at key, or "" when absent.
func (f *fields) optString(key string) string {
	v, ok := f.data[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case int, int64, float64:
		return fmt.Sprint(s)
	default:
		f.fail(key, "Expected string")
		return ""
	}
}

// str returns a required string bounded to max runes (0 means unbounded).
func (f *fields) str(key, requiredMsg string, max int, maxMsg string) string {
	if !f.has(key) {
		f.fail(key, requiredMsg)
		return ""
	}

	s := f.optString(key)
	if _, isString := f.data[key].(string); isString && strings.TrimSpace(s) == "" {
		f.fail(key, requiredMsg)
		return s
	}
	if max > 0 && utf8.RuneCountInString(s) > max {
		f.fail(key, maxMsg)
	}
	return s
}

// boundedString validates an optional string against a maximum length.
func (f *fields) boundedString(key string, max int, maxMsg string) string {
	s := f.optString(key)
	if max > 0 && utf8.RuneCountInString(s) > max {
		f.fail(key, maxMsg)
	}
	return s
}

func (f *fields) slug(key, requiredMsg string) string {
	s := f.str(key, requiredMsg, 0, "")
	if s != "" && !slugPattern.MatchString(s) {
		f.fail(key, "Slug must contain only lowercase letters, numbers, and hyphens")
	}
	return s
}

// urlString validates an optional absolute URL.
func (f *fields) urlString(key, msg string, required bool) string {
	s := f.optString(key)
	if s == "" {
		if required {
			f.fail(key, msg)
		}
		return ""
	}
	if !isURL(s) {
		f.fail(key, msg)
	}
	return s
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (f *fields) email(key, msg string) string {
	s := f.optString(key)
	if _, err := mail.ParseAddress(s); err != nil || !strings.Contains(s, "@") || strings.ContainsAny(s, " <>") {
		f.fail(key, msg)
	}
	return s
}

func (f *fields) match(key string, re *regexp.Regexp, msg string) string {
	s := f.optString(key)
	if !re.MatchString(s) {
		f.fail(key, msg)
	}
	return s
}

func (f *fields) boolean(key string) bool {
	v, ok := f.data[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			f.fail(key, "Expected boolean")
		}
		return parsed
	default:
		f.fail(key, "Expected boolean")
		return false
	}
}

// integer reads a whole number; ok is false when the key is absent.
func (f *fields) integer(key string) (n int, ok bool) {
	v, present := f.data[key]
	if !present || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			f.fail(key, "Expected integer, received float")
			return int(x), true
		}
		return int(x), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			f.fail(key, "Expected number")
			return 0, true
		}
		return parsed, true
	default:
		f.fail(key, "Expected number")
		return 0, true
	}
}

func (f *fields) positive(key string) int {
	n, ok := f.integer(key)
	if ok && n <= 0 {
		f.fail(key, "Number must be greater than 0")
	}
	return n
}

func (f *fields) stringList(key string) []string {
	v, ok := f.data[key]
	if !ok || v == nil {
		return []string{}
	}
	items, ok := toSlice(v)
	if !ok {
		if s, isString := v.(string); isString {
			return splitList(s)
		}
		f.fail(key, "Expected array")
		return []string{}
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case int, int64, float64:
			out = append(out, fmt.Sprint(s))
		default:
			f.errs.Add(fmt.Sprintf("%s[%d]", f.name(key), i), "Expected string")
		}
	}
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// date coerces a date-like value. Absent values fall back to def; a zero
// def makes the field required.
func (f *fields) date(key string, def time.Time) time.Time {
	v, ok := f.data[key]
	if !ok || v == nil {
		if def.IsZero() {
			f.fail(key, "Invalid date")
		}
		return def
	}

	t, err := coerceDate(v)
	if err != nil {
		f.fail(key, "Invalid date")
		return def
	}
	return t
}

func coerceDate(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", x)
	case int:
		return time.UnixMilli(int64(x)).UTC(), nil
	case int64:
		return time.UnixMilli(x).UTC(), nil
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

func (f *fields) status() Status {
	s := f.optString("status")
	switch Status(s) {
	case "":
		return StatusDraft
	case StatusDraft, StatusPublished:
		return Status(s)
	default:
		f.fail("status", "Invalid enum value. Expected 'draft' | 'published'")
		return Status(s)
	}
}

func (f *fields) seo() SEOMetadata {
	s := f.object("seo", true)

	meta := SEOMetadata{
		Title:       s.str("title", "Title is required", 60, "Title should be under 60 characters"),
		Description: s.str("description", "Description is required", 160, "Description should be under 160 characters"),
		Keywords:    s.stringList("keywords"),
		OGImage:     s.urlString("ogImage", "Invalid url", false),
		OGType:      s.optString("ogType"),
		TwitterCard: s.optString("twitterCard"),
	}

	switch meta.TwitterCard {
	case "", "summary", "summary_large_image":
	default:
		s.fail("twitterCard", "Invalid enum value. Expected 'summary' | 'summary_large_image'")
	}

	return meta
}

func (f *fields) images(key string, minOne bool) []Image {
	items, present := f.list(key)
	if !present {
		if minOne {
			f.fail(key, "Required")
		}
		return nil
	}

	out := make([]Image, 0, len(items))
	for _, item := range items {
		out = append(out, Image{
			Src:     item.urlString("src", "Image source must be a valid URL", true),
			Alt:     item.str("alt", "Alt text is required for accessibility", 0, ""),
			Caption: item.optString("caption"),
			Width:   item.positive("width"),
			Height:  item.positive("height"),
		})
	}

	if minOne && len(out) == 0 {
		if raw, ok := toSlice(f.data[key]); ok && len(raw) == 0 {
			f.fail(key, "At least one image is required")
		}
	}
	return out
}
