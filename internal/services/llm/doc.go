// Package llm provides an OpenRouter-compatible chat completions client.
//
// It backs every language-model collaborator in sitegrade: phase narratives
// (including the screenshot-based Vision phase, sent as an image_url content
// part), phase scores, recommendations and chat replies.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send an arbitrary message list, receive text.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: tolerant decoding of model JSON (code fences, prose).
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Context cancellation aborts retries immediately.
package llm
