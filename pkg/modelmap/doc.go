// Package modelmap resolves client-visible model names into fallback target
// chains. A name is either an alias or combo configured in the alias table,
// or an unknown literal that falls through to the default provider unchanged.
//
// Resolutions obtained through the optional remote lookup path are memoized
// in a TTL cache, and concurrent lookups for the same name are collapsed so
// the lookup backend sees each name at most once per settle window.
package modelmap
