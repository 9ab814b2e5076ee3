// Package llm is a small client for OpenAI-compatible chat completions in
// JSON mode, pointed at OpenRouter unless configured otherwise.
//
// CompleteVisionJSON sends the audit prompt with the sampled frames attached
// as inline image_url parts. HealthCheck is a cheap round trip used by
// preflight.
//
// # Retry Behaviour
//
// HTTP 408/429/5xx, empty completions and network timeouts are retried with
// doubling delays (1s base, 10s cap, 5 attempts by default), honouring
// Retry-After. Config.RetryAttempts of 1 disables retries. Context
// cancellation stops immediately.
//
// DecodeLLMJSON tolerates code fences and prose around the JSON payload.
package llm
