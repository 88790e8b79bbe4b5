package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Sync errors.
var (
	// ErrNilContext is returned when a nil device context is supplied.
	ErrNilContext = errors.New("gpu: context is nil")

	// ErrNilStaged is returned when a nil staging source is supplied.
	ErrNilStaged = errors.New("gpu: staged source is nil")

	// ErrBufferDestroyed is returned when syncing a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")
)

// Staged is the CPU side of the buffer sync protocol. The allocators in
// package alloc implement it.
//
// Both Take methods consume their signal: the first call after a change
// reports it, later calls report nothing until the next change.
type Staged interface {
	// Bytes returns the current staging contents. The slice is only
	// valid until the next mutation.
	Bytes() []byte

	// TakeResize returns the staging size after a capacity change and
	// clears the signal. ok is false when no resize happened since the
	// last call.
	TakeResize() (size int, ok bool)

	// TakeDirty reports whether the contents changed since the last call
	// and clears the flag.
	TakeDirty() bool
}

// SyncedBufferDescriptor configures a SyncedBuffer.
type SyncedBufferDescriptor struct {
	// Label is the debug name for the device buffer.
	Label string

	// Usage specifies device buffer usage flags.
	// Defaults to Storage|CopyDst when zero.
	Usage gputypes.BufferUsage
}

// SyncStats reports device-side sync activity.
type SyncStats struct {
	// Recreates counts device buffer recreations caused by staging growth.
	Recreates uint64

	// Uploads counts full staging uploads to the device buffer.
	Uploads uint64
}

// String returns a human-readable summary.
func (s SyncStats) String() string {
	return fmt.Sprintf("SyncStats{Recreates: %d, Uploads: %d}", s.Recreates, s.Uploads)
}

// SyncedBuffer mirrors one staging arena into a device buffer.
//
// Each frame the render loop calls Sync: a pending resize destroys and
// recreates the device buffer at the new size, and pending content
// changes re-upload the staging bytes in full. With no pending signals
// Sync does nothing, so calling it every frame is cheap.
//
// After a recreate the old buffer handle is gone and any bind group
// referencing it is stale. NeedsRebuild reports this until the consumer
// rebinds and calls ClearNeedsRebuild; Bindings does both.
type SyncedBuffer struct {
	ctx    *Context
	staged Staged
	label  string
	usage  gputypes.BufferUsage

	buf        hal.Buffer
	deviceSize uint64

	needsRebuild bool
	destroyed    bool
	stats        SyncStats
}

// NewSyncedBuffer creates the device buffer for a staging arena. Growth
// that happened while the arena was CPU-only is folded into the initial
// allocation. The buffer starts with NeedsRebuild set since it has never
// been bound.
func NewSyncedBuffer(ctx *Context, staged Staged, desc SyncedBufferDescriptor) (*SyncedBuffer, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if staged == nil {
		return nil, ErrNilStaged
	}
	usage := desc.Usage
	if usage == 0 {
		usage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	}
	b := &SyncedBuffer{ctx: ctx, staged: staged, label: desc.Label, usage: usage}

	staged.TakeResize()

	if err := b.createDeviceBuffer(uint64(len(staged.Bytes()))); err != nil {
		return nil, err
	}
	b.needsRebuild = true
	return b, nil
}

func (b *SyncedBuffer) createDeviceBuffer(size uint64) error {
	// Copy operations require 4-byte alignment, and zero-size buffers
	// are invalid, so round up to at least one word.
	const copyAlignment uint64 = 4
	aligned := max((size+copyAlignment-1)&^(copyAlignment-1), copyAlignment)
	buf, err := b.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label,
		Size:  aligned,
		Usage: b.usage,
	})
	if err != nil {
		return fmt.Errorf("gpu: create device buffer %q (%d bytes): %w", b.label, aligned, err)
	}
	b.buf = buf
	b.deviceSize = aligned
	return nil
}

// Sync applies pending staging changes to the device buffer. A resize
// also uploads, so a freshly grown buffer never holds stale bytes. A
// failed recreation leaves the buffer unusable; callers should treat the
// error as fatal for the device.
func (b *SyncedBuffer) Sync() error {
	if b.destroyed {
		return ErrBufferDestroyed
	}
	resized := false
	if size, ok := b.staged.TakeResize(); ok {
		old := b.buf
		if err := b.createDeviceBuffer(uint64(size)); err != nil {
			return err
		}
		b.ctx.device.DestroyBuffer(old)
		b.needsRebuild = true
		b.stats.Recreates++
		resized = true
		slogger().Debug("device buffer recreated", "label", b.label, "size", b.deviceSize)
	}
	dirty := b.staged.TakeDirty()
	if dirty || resized {
		b.ctx.queue.WriteBuffer(b.buf, 0, b.staged.Bytes())
		b.stats.Uploads++
	}
	return nil
}

// Buffer returns the current device buffer handle. Stale after a resync
// that recreated the buffer; fetch it again when NeedsRebuild reports
// true.
func (b *SyncedBuffer) Buffer() hal.Buffer { return b.buf }

// DeviceSize returns the device buffer size in bytes. At least the
// staging size, rounded up for copy alignment.
func (b *SyncedBuffer) DeviceSize() uint64 { return b.deviceSize }

// Label returns the debug label.
func (b *SyncedBuffer) Label() string { return b.label }

// NeedsRebuild reports whether the device buffer was recreated since the
// last ClearNeedsRebuild, meaning bind groups over it are stale.
func (b *SyncedBuffer) NeedsRebuild() bool { return b.needsRebuild }

// ClearNeedsRebuild acknowledges a recreation after rebinding.
func (b *SyncedBuffer) ClearNeedsRebuild() { b.needsRebuild = false }

// Stats returns sync counters.
func (b *SyncedBuffer) Stats() SyncStats { return b.stats }

// Destroy releases the device buffer. Safe to call more than once.
func (b *SyncedBuffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if b.buf != nil {
		b.ctx.device.DestroyBuffer(b.buf)
		b.buf = nil
	}
}
