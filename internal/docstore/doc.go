// Package docstore provides a SQLite-backed document store.
//
// Documents are JSON bodies keyed by (collection, id) in a single
// table. The store exposes the minimal surface a migration engine
// needs from a schema-less database:
//   - read one document by key
//   - write/replace one document by key, optionally guarded by a
//     revision precondition (compare-and-swap)
//   - enumerate a collection and mutate fields across it
//
// Every write bumps the document's rev counter. Replace with an
// expected rev is the primitive the manifest uses for its advisory
// lock and checkpoint updates.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package docstore
