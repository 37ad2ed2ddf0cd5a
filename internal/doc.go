// Package internal contains the core implementation packages for gitcms.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - remote: Content repository stores (GitHub API, local checkout, memory)
//   - content: Markdown and YAML front matter parsing into typed documents
//   - fetcher: Directory listing, concurrent document loading and lookups
//   - revalidate: Commit diff classification and invalidation routing
//   - cache: Tagged page cache with memory and Redis backends
//   - ratelimit: Fixed-window rate limiting with memory and Redis backends
//   - webhook: GitHub push webhook verification and dispatch
//   - websocket: Live invalidation feed for connected editors
//   - watcher: File system monitoring of a local checkout with debouncing
//   - health: Component checks behind /health
//   - server: HTTP server, admin API, public documents and middleware
//   - config, logging, errors, validation, version: Ambient support
//
// # Data Flow
//
// A push reaches the webhook handler, which verifies the signature and
// hands the commits to the classifier. The classifier maps changed paths to
// content types, and the router invalidates the matching cache tags and
// public paths and notifies websocket clients. Public requests are served
// from the page cache and fall through to the fetcher on a miss.
//
// With the local backend the watcher feeds the same router, so edits saved
// in the checkout invalidate exactly like pushed commits.
package internal
