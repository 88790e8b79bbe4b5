package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Binding errors.
var (
	// ErrNoBindings is returned when a bind group is created without slots.
	ErrNoBindings = errors.New("gpu: no binding slots")

	// ErrNilBuffer is returned when a binding slot has no buffer.
	ErrNilBuffer = errors.New("gpu: binding slot buffer is nil")
)

// BindingSlot binds one synced buffer at a shader binding index.
type BindingSlot struct {
	// Binding is the @binding index in the shader.
	Binding uint32

	// Buffer is the synced buffer bound at this slot.
	Buffer *SyncedBuffer

	// Type selects uniform, storage or read-only storage access.
	Type gputypes.BufferBindingType
}

// Bindings owns a bind group layout and the bind group over a set of
// synced buffers. When a buffer is recreated at a new size the old bind
// group goes stale; RebuildIfNeeded recreates it in place so shaders
// keep seeing the current buffers.
//
// The layout is created once and survives rebuilds, so pipelines built
// against Layout stay valid. Each SyncedBuffer should belong to at most
// one Bindings: rebuilds consume the buffers' rebuild signals.
type Bindings struct {
	ctx   *Context
	label string
	slots []BindingSlot

	layout hal.BindGroupLayout
	group  hal.BindGroup

	rebuilds  uint64
	destroyed bool
}

// NewBindings creates the layout and initial bind group. All slots are
// visible to compute shaders.
func NewBindings(ctx *Context, label string, slots []BindingSlot) (*Bindings, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(slots) == 0 {
		return nil, ErrNoBindings
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(slots))
	for i, slot := range slots {
		if slot.Buffer == nil {
			return nil, fmt.Errorf("%w: binding %d", ErrNilBuffer, slot.Binding)
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    slot.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: slot.Type},
		}
	}
	layout, err := ctx.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group layout %q: %w", label, err)
	}
	g := &Bindings{ctx: ctx, label: label, slots: slots, layout: layout}
	if err := g.buildGroup(); err != nil {
		ctx.device.DestroyBindGroupLayout(layout)
		return nil, err
	}
	for _, slot := range g.slots {
		slot.Buffer.ClearNeedsRebuild()
	}
	return g, nil
}

func (g *Bindings) buildGroup() error {
	entries := make([]gputypes.BindGroupEntry, len(g.slots))
	for i, slot := range g.slots {
		entries[i] = gputypes.BindGroupEntry{
			Binding: slot.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: slot.Buffer.Buffer().NativeHandle(),
				Offset: 0,
				Size:   slot.Buffer.DeviceSize(),
			},
		}
	}
	group, err := g.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   g.label,
		Layout:  g.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group %q: %w", g.label, err)
	}
	g.group = group
	return nil
}

// RebuildIfNeeded recreates the bind group when any bound buffer was
// recreated since the last build, and reports whether it did. Callers
// must re-fetch Group afterwards.
func (g *Bindings) RebuildIfNeeded() (bool, error) {
	needed := false
	for _, slot := range g.slots {
		if slot.Buffer.NeedsRebuild() {
			needed = true
			break
		}
	}
	if !needed {
		return false, nil
	}
	old := g.group
	if err := g.buildGroup(); err != nil {
		return false, err
	}
	if old != nil {
		g.ctx.device.DestroyBindGroup(old)
	}
	for _, slot := range g.slots {
		slot.Buffer.ClearNeedsRebuild()
	}
	g.rebuilds++
	slogger().Debug("bind group rebuilt", "label", g.label, "rebuilds", g.rebuilds)
	return true, nil
}

// Group returns the current bind group. Stale after a rebuild; fetch it
// each frame.
func (g *Bindings) Group() hal.BindGroup { return g.group }

// Layout returns the bind group layout. Stable across rebuilds.
func (g *Bindings) Layout() hal.BindGroupLayout { return g.layout }

// Rebuilds returns the number of bind group rebuilds so far.
func (g *Bindings) Rebuilds() uint64 { return g.rebuilds }

// Destroy releases the bind group and layout. Safe to call more than once.
func (g *Bindings) Destroy() {
	if g.destroyed {
		return
	}
	g.destroyed = true
	if g.group != nil {
		g.ctx.device.DestroyBindGroup(g.group)
		g.group = nil
	}
	if g.layout != nil {
		g.ctx.device.DestroyBindGroupLayout(g.layout)
		g.layout = nil
	}
}
