package recommend

import (
	"net/url"
	"strings"
)

// TaskStatus is the lifecycle of one competitor fetch.
type TaskStatus string

const (
	StatusLoading TaskStatus = "loading"
	StatusLoaded  TaskStatus = "loaded"
	StatusError   TaskStatus = "error"
)

// ReasonTimeout marks a task that exceeded its own timeout.
const ReasonTimeout = "timeout"

// ReasonStreamTimeout marks tasks still loading when the stream timed out.
const ReasonStreamTimeout = "stream_timeout"

// CompetitorTask is the state of one competitor fetch.
type CompetitorTask struct {
	URL    string     `json:"url"`
	Status TaskStatus `json:"status"`
	Image  []byte     `json:"image,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// FilterCompetitors drops invalid URLs, duplicates and the evaluated site,
// then caps the list at limit (no cap when limit <= 0).
func FilterCompetitors(evaluated string, candidates []string, limit int) []string {
	seen := map[string]bool{}
	if key, ok := siteKey(evaluated); ok {
		seen[key] = true
	}
	var out []string
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		key, ok := siteKey(candidate)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidate)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// siteKey normalises a URL for duplicate detection: scheme and a leading
// "www." are ignored, as is a trailing slash.
func siteKey(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host + strings.TrimSuffix(u.EscapedPath(), "/"), true
}
