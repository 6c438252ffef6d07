// Package format implements the wire-format registry and the request/response
// translations between chat dialects.
//
// A Format identifies one wire-protocol dialect (OpenAI chat-completions,
// OpenAI responses, Anthropic messages). Translations are registered as
// directed edges between two formats: a required request transform and an
// optional response transform. The registry is populated once at startup and
// is read-only afterwards, so lookups need no locking.
//
// All transforms are pure functions over raw JSON bodies: they never mutate
// their input, they preserve top-level fields they do not understand whenever
// the target dialect has no conflicting field, and they strip fields that only
// carry meaning in the source dialect (instructions, prior input items,
// provider-side caching hints).
//
// Lookups fail closed: a format pair with no registered edge yields an
// UnsupportedConversionError rather than a silent passthrough. The only
// implicit edge is the identity pair (from == to).
package format
