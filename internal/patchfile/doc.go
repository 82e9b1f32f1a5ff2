// Package patchfile loads declarative patch files.
//
// A patch source directory holds CUE files, each contributing entries
// to a top-level patches struct:
//
//	patches: "add-order-status": {
//		base:   "1.0.0"
//		target: "1.1.0"
//		note:   "add a status field to orders"
//		ops: [
//			{do: "set", collection: "orders", field: "status", value: "open"},
//		]
//	}
//
// The op vocabulary is a closed set of document-store mutations: set,
// unset, rename, insert, delete. Patches needing anything richer are
// registered in code instead (patch.Registry).
//
// Dir implements patch.Source over such a directory; compile errors
// carry CUE source positions.
package patchfile
