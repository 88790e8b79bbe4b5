// Package alloc implements the CPU-side allocators that back the resident
// GPU buffers: a fixed-size slot allocator for uniformly sized records
// (world matrices, joint palettes) and a power-of-two buddy allocator for
// variably sized records (morph weights, material uniform blobs).
//
// Both allocators stage data in a contiguous byte buffer that mirrors a
// device buffer one-to-one. They never touch the GPU themselves; instead
// each exposes two consumed-once signals for the owning synced buffer:
//
//   - TakeResize reports that the staging buffer was reallocated and the
//     device buffer must be recreated at the new size (and any binding that
//     addresses it rebuilt).
//   - TakeDirty reports that staged bytes changed since the last take and
//     an upload is needed.
//
// Growth is amortized doubling and is internal: an operation that needs
// more room grows the staging buffer synchronously and then completes.
// Callers never see an out-of-capacity error.
//
// Lookups use comma-ok returns, mirroring map access. Corrupted internal
// state (an impossible offset, a buddy allocation that fails directly after
// growth) panics: those are programming errors, not conditions a caller can
// recover from.
//
// The allocators are not safe for concurrent use. They are built for a
// single render/update thread that applies many mutations per frame and
// then syncs once.
package alloc
