// Package fallback implements the per-request orchestration loop: try each
// (account, model) candidate in order, classify failures, and decide whether
// to refresh a credential, rotate to another account, advance to the next
// model in the chain, or abort.
//
// The orchestrator holds no cross-request state. Candidates are tried
// strictly sequentially, never concurrently, so a paid upstream API is never
// hit twice for the same attempt slot. Classification decisions stay inside
// this package; callers only ever see a successful result or the single
// terminal AllCandidatesExhaustedError aggregate.
//
// Invariants:
//   - an account receives at most one credential refresh per request; a
//     second auth failure after refresh escalates to fatal-for-account
//   - a model is never retried after any account under it classified as
//     fatal-for-model
//   - an unrecognized failure is fatal-for-model, never retried
package fallback
