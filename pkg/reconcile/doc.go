// Package reconcile keeps a local document and the relay in step.
//
// Local changes become one EditDelta per change record and are sent
// immediately. Remote deltas are applied through the Document while
// outbound sending is suppressed, so an applied remote edit is never
// echoed back as if it were local.
//
// Concurrent overlapping edits are applied last-write-wins. A delta whose
// range no longer exists in the local document is dropped.
package reconcile
