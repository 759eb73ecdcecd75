// Package core is the application service for the sales import system.
//
// It sits between the HTTP layer and the store, and owns the rules that are
// not part of a single query:
//
//   - Imports: [Service.RunImport] serializes runs through an [ImportLimiter],
//     records each run in the import history and hands the rows to the
//     importer engine.
//   - Catalog: customers (each backed by an account) and products.
//   - Sales: listing, lookup, deletion and [Service.CreateSale], the
//     interactive path that prices lines at the current product price and
//     decrements stock.
//   - Maintenance: [Service.StartPruneScheduler] removes old import runs.
//
// # Error Handling
//
// Methods return wrapped sentinel errors from this package, the store and the
// accounts package. [MapError] turns any of them into a coded [UserMessage]:
//
//   - DB001-DB008: database errors (duplicates, references, connections)
//   - VAL003-VAL008: validation errors (input, columns, stock, email)
//   - FILE001-FILE006: file errors (size, format, missing data)
//   - IMP001-IMP004: import errors (busy, cancelled, timed out)
package core
