// Package aggregates contains gorm implementations of the domain aggregate contracts.
//
// Implementations compose the table-level repos from internal/data/repos and
// own the transaction boundary of every invariant-critical write.
package aggregates
