// Package aggregates defines the write boundaries of the memory core.
//
// Each aggregate owns one set of invariants that must hold atomically:
// identity uniqueness, one sequenced append per conversation, and a
// monotonic summary watermark. Persistence lives in internal/data/aggregates.
package aggregates
