package fetcher

import (
	"net/url"
	"strings"
)

// ValidateURL checks that a URL is fetchable: absolute, http or https.
// javascript:, data: and file: URLs are rejected outright, as is anything
// without a host. Validation happens before job creation so a rejected URL
// never becomes a fetch job.
func ValidateURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return NewInvalidURLError(rawURL, "empty URL")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return NewInvalidURLError(rawURL, "malformed URL")
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http", "https":
		// OK
	case "javascript", "data", "file":
		return NewInvalidURLError(rawURL, "scheme %q is not allowed", scheme)
	case "":
		return NewInvalidURLError(rawURL, "relative URLs are not allowed")
	default:
		return NewInvalidURLError(rawURL, "unsupported scheme %q", scheme)
	}

	if parsed.Host == "" {
		return NewInvalidURLError(rawURL, "missing host")
	}

	return nil
}

// NormalizeURLs validates and deduplicates a URL list, preserving input
// order for the accepted entries. Returns the accepted URLs and the
// rejected ones with their validation errors.
func NormalizeURLs(urls []string) (accepted []string, rejected map[string]error) {
	rejected = make(map[string]error)
	seen := make(map[string]struct{}, len(urls))

	for _, rawURL := range urls {
		trimmed := strings.TrimSpace(rawURL)
		if err := ValidateURL(trimmed); err != nil {
			rejected[rawURL] = err
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		accepted = append(accepted, trimmed)
	}

	return accepted, rejected
}
