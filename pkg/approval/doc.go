// Package approval holds tool calls back for human review.
//
// A pending action moves pending -> approved -> executed|failed, or
// pending -> rejected|expired. Every status write is a compare-and-swap on
// the previous status, so two reviewers racing on the same action cannot
// both win and an approved action runs exactly once.
package approval
