// Package importer reconciles a batch of sale rows against the store and
// persists the resulting sales.
//
// # Phases
//
// A run moves through a fixed sequence of phases:
//
//	Reading → Validating → Resolving → Materializing → Persisting → Done
//
// In detail:
//   - Reading pulls every row from a [RowReader]. A read failure or an empty
//     source ends the run immediately with RowsProcessed = 0.
//   - Validating checks each row with [Validate]. Rejected rows stay counted
//     in RowsProcessed but take no further part.
//   - Resolving maps every distinct customer email and product name to an id
//     with two bulk lookups, creates the missing ones and commits them in one
//     transaction. This commit is kept even if a later phase fails.
//   - Materializing builds a Sale and one SaleLineItem per accepted row.
//   - Persisting writes all sales and line items in one transaction.
//
// # Errors
//
// [Engine.Run] never returns an error. Every failure lands in
// [Result.Errors] with one of the kinds below:
//   - [KindRowRejected]: validation failure, one entry per row
//   - [KindReferenceCreationFailed]: a customer or product could not be
//     created; only rows referencing it are dropped
//   - [KindPersistenceFailed]: the sale commit failed; no sale is stored
//   - [KindFatalRead]: the source could not be read at all
//   - [KindCancelled]: the context ended while a phase was running
//
// Errors are ordered by phase, then by row index within a phase.
//
// # Concurrency
//
// A run is synchronous. The two bulk lookups of the Resolving phase run
// concurrently and both finish before anything is written. Two runs against
// the same store are not coordinated; callers serialize them.
package importer
