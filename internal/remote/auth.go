package remote

import (
	"net/http"
	"os"
)

// tokenEnvVars lists the environment variables checked for a GitHub token,
// in priority order.
var tokenEnvVars = []string{
	"GITHUB_TOKEN",
	"GH_TOKEN",
}

// TokenFromEnv returns the first GitHub token found in the environment.
func TokenFromEnv() string {
	for _, env := range tokenEnvVars {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// tokenTransport adds the GitHub API headers to every request.
type tokenTransport struct {
	token     string
	userAgent string
	base      http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the original
	r := req.Clone(req.Context())
	if t.token != "" {
		r.Header.Set("Authorization", "token "+t.token)
	}
	r.Header.Set("Accept", "application/vnd.github.v3+json")
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// newHTTPClient wraps base with the token transport. A nil base uses
// http.DefaultTransport.
func newHTTPClient(token, userAgent string, base *http.Client) *http.Client {
	rt := http.DefaultTransport
	if base != nil && base.Transport != nil {
		rt = base.Transport
	}

	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Transport = &tokenTransport{token: token, userAgent: userAgent, base: rt}
	return client
}
