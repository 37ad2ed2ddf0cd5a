// Package validation checks untrusted input that reaches the repository or
// leaves the process: repository paths, commit messages, URLs and origins.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/conneroisu/gitcms/internal/content"
	"github.com/conneroisu/gitcms/internal/remote"
)

// MaxMessageLength bounds commit messages.
const MaxMessageLength = 4096

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(rawURL string) error {
	if strings.ContainsAny(rawURL, " \t\r\n\x00") {
		return fmt.Errorf("URL contains whitespace or control characters")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateOrigin checks an Origin header against the allowed origins. An
// allowed entry matches the full origin or just its host.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(origin, strings.TrimRight(allowed, "/")) || strings.EqualFold(originURL.Host, allowed) {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ContentPath normalizes a repository path and checks that it stays inside
// the content directory.
func ContentPath(p string) (string, error) {
	if strings.ContainsAny(p, "\x00\r\n") {
		return "", fmt.Errorf("path contains control characters")
	}
	if len(p) > 1 && p[1] == ':' {
		return "", fmt.Errorf("path must be relative to the repository root: %s", p)
	}

	clean := remote.CleanPath(p)
	if clean == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	for _, segment := range strings.Split(clean, "/") {
		if segment == ".." {
			return "", fmt.Errorf("path traversal detected: %s", p)
		}
		if segment == "" || segment == "." {
			return "", fmt.Errorf("path has empty segments: %s", p)
		}
	}

	if clean != content.ContentRoot && !strings.HasPrefix(clean, content.ContentRoot+"/") {
		return "", fmt.Errorf("path must be under %s/: %s", content.ContentRoot, p)
	}

	return clean, nil
}

// SanitizeMessage strips control characters other than newlines and tabs
// from a commit message, trims it, and truncates it to MaxMessageLength.
func SanitizeMessage(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var sanitized strings.Builder
	for _, r := range input {
		if r >= 32 && r != 127 || r == '\t' || r == '\n' {
			sanitized.WriteRune(r)
		}
	}

	msg := strings.TrimSpace(sanitized.String())
	if len(msg) > MaxMessageLength {
		msg = strings.ToValidUTF8(msg[:MaxMessageLength], "")
	}
	return msg
}
