// Package projector reduces a full metrics snapshot to the subset a single
// evaluation phase needs.
//
// Each phase has a static allowlist of snapshot paths. Projection copies the
// allowed leaves and subtrees, rewrites keys to a compact canonical form
// (performance.largestContentfulPaint becomes perf.lcp_ms), and rounds every
// number to two decimals so collaborator payloads stay small and stable.
// Vision, Overall and Recommendations have no allowlist and project to an
// empty object, as do unknown phases: Vision is judged from the screenshot.
package projector
