// Package api serves the sitegrade HTTP API and defines its wire-format types.
//
// # Transport
//
// Server routes requests with net/http method patterns. Every route except
// /api/health requires "Authorization: Bearer <token>" when a token is
// configured, and the acting user is read from the X-User-ID header. Sessions
// and accounts owned by another user report not_found.
//
// Responses use a single envelope:
//
//	{"ok": true, "data": {...}}
//	{"ok": false, "error": {"code": "insufficient_balance", "message": "...", "retryable": false}}
//
// Error codes come from services.Classify and map onto HTTP statuses in
// statusFor.
//
// # Recommendations
//
// Advancing into Recommendations returns an NDJSON body: one recommendation
// event per line, ending with {"type":"done"} or an {"type":"error"} line.
// The websocket route performs the same advance and writes each event as a
// JSON text message.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Credit amounts are decimal strings so clients
// never see the internal hundredths representation. Timestamps use RFC3339
// with milliseconds.
package api
