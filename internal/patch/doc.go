// Package patch defines the migration model: versions, patch units,
// patch sources, and the validated patch chain.
//
// A Patch upgrades the data model from its Base version to its Target
// version by mutating the document store directly. Patches are
// independently authored; Build assembles a set of them into a Chain
// and proves the set reduces to a single linear, gapless, branch-free
// sequence starting at the initial version. Nothing is ever applied
// from a set that fails validation.
//
// Chain order is derived purely from base→target connectivity. Version
// ordering (Compare) exists for display; it is never used to order the
// chain.
package patch
