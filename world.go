package residency

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/dakom/awsm-renderer-sub001/alloc"
	"github.com/dakom/awsm-renderer-sub001/gpu"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/material"
	"github.com/dakom/awsm-renderer-sub001/morph"
	"github.com/dakom/awsm-renderer-sub001/skin"
	"github.com/dakom/awsm-renderer-sub001/transform"
)

// World errors.
var (
	// ErrNoDevice is returned by GPU operations on a world created
	// without WithDevice.
	ErrNoDevice = errors.New("residency: world has no GPU device")

	// ErrClosed is returned by GPU operations on a closed world.
	ErrClosed = errors.New("residency: world is closed")
)

// Shader binding indices within the shared residency bind group.
const (
	BindingTransforms uint32 = 0
	BindingSkins      uint32 = 1
	BindingMorphs     uint32 = 2
	BindingMaterials  uint32 = 3
)

// World is the residency facade: one scene transform graph plus the skin,
// morph and material stores, mirrored into four device buffers behind a
// single bind group.
//
// A World is not safe for concurrent use. The intended loop is
// single-threaded: scene edits, then UpdateWorld, then WriteGPU (Frame
// runs the last two back to back).
type World struct {
	ctx *gpu.Context

	graph     *transform.Graph
	skins     *skin.Store
	morphs    *morph.Store
	materials *material.Store

	transformBuf *gpu.SyncedBuffer
	skinBuf      *gpu.SyncedBuffer
	morphBuf     *gpu.SyncedBuffer
	materialBuf  *gpu.SyncedBuffer
	bindings     *gpu.Bindings

	closed bool
}

// NewWorld creates a world. Without WithDevice the world stages all data
// CPU-side and GPU operations report ErrNoDevice; with a device it also
// creates the four device buffers and the shared bind group up front.
func NewWorld(opts ...WorldOption) (*World, error) {
	o := defaultWorldOptions()
	for _, opt := range opts {
		opt(&o)
	}
	w := &World{
		graph:     transform.New(o.transformCapacity),
		skins:     skin.NewStore(o.jointsPerPalette, o.paletteCapacity),
		morphs:    morph.NewStore(o.morphArenaBytes),
		materials: material.NewStore(o.materialArenaBytes),
	}
	if o.device == nil {
		return w, nil
	}
	if err := w.createDeviceState(o.device); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *World) createDeviceState(ctx *gpu.Context) error {
	w.ctx = ctx
	var err error
	w.transformBuf, err = gpu.NewSyncedBuffer(ctx, w.graph, gpu.SyncedBufferDescriptor{
		Label: "transforms",
	})
	if err != nil {
		return err
	}
	w.skinBuf, err = gpu.NewSyncedBuffer(ctx, w.skins, gpu.SyncedBufferDescriptor{
		Label: "skin_palettes",
	})
	if err != nil {
		return err
	}
	w.morphBuf, err = gpu.NewSyncedBuffer(ctx, w.morphs, gpu.SyncedBufferDescriptor{
		Label: "morph_weights",
	})
	if err != nil {
		return err
	}
	w.materialBuf, err = gpu.NewSyncedBuffer(ctx, w.materials, gpu.SyncedBufferDescriptor{
		Label: "material_uniforms",
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	w.bindings, err = gpu.NewBindings(ctx, "residency", []gpu.BindingSlot{
		{Binding: BindingTransforms, Buffer: w.transformBuf, Type: gputypes.BufferBindingTypeReadOnlyStorage},
		{Binding: BindingSkins, Buffer: w.skinBuf, Type: gputypes.BufferBindingTypeReadOnlyStorage},
		{Binding: BindingMorphs, Buffer: w.morphBuf, Type: gputypes.BufferBindingTypeReadOnlyStorage},
		{Binding: BindingMaterials, Buffer: w.materialBuf, Type: gputypes.BufferBindingTypeUniform},
	})
	if err != nil {
		return err
	}
	Logger().Debug("world device state created",
		"transforms", w.transformBuf.DeviceSize(),
		"skin_palettes", w.skinBuf.DeviceSize(),
		"morph_weights", w.morphBuf.DeviceSize(),
		"material_uniforms", w.materialBuf.DeviceSize())
	return nil
}

// Transforms returns the scene transform graph.
func (w *World) Transforms() *transform.Graph { return w.graph }

// Skins returns the skin palette store.
func (w *World) Skins() *skin.Store { return w.skins }

// Morphs returns the morph weight store.
func (w *World) Morphs() *morph.Store { return w.morphs }

// Materials returns the material uniform store.
func (w *World) Materials() *material.Store { return w.materials }

// Bindings returns the shared bind group state, or nil for a world
// without a device. Pipelines should be built against Bindings().Layout,
// which stays valid across buffer growth.
func (w *World) Bindings() *gpu.Bindings { return w.bindings }

// Device returns the attached device context, or nil.
func (w *World) Device() *gpu.Context { return w.ctx }

// UpdateWorld re-derives world matrices for all dirty subtrees. Part of
// the frame protocol; Frame calls it before WriteGPU. CPU-only worlds
// call it directly.
func (w *World) UpdateWorld() { w.graph.UpdateWorld() }

// TakeDirtyMeshes returns the keys whose world matrix changed during the
// last UpdateWorld and clears the list. Renderers use it to refresh
// derived per-mesh state such as bounding volumes.
func (w *World) TakeDirtyMeshes() []key.Key { return w.graph.TakeDirtyMeshes() }

// WriteGPU mirrors the staging arenas into their device buffers: arenas
// that grew get a fresh buffer, arenas that changed are re-uploaded, and
// the bind group is rebuilt when any buffer moved. Arenas that did
// neither cost nothing. Call after UpdateWorld.
func (w *World) WriteGPU() error {
	if w.closed {
		return ErrClosed
	}
	if w.ctx == nil {
		return ErrNoDevice
	}
	for _, buf := range w.syncedBuffers() {
		if err := buf.Sync(); err != nil {
			return fmt.Errorf("residency: sync %q: %w", buf.Label(), err)
		}
	}
	if _, err := w.bindings.RebuildIfNeeded(); err != nil {
		return fmt.Errorf("residency: rebuild bind group: %w", err)
	}
	return nil
}

// Frame runs one full residency frame: UpdateWorld then WriteGPU.
func (w *World) Frame() error {
	if w.closed {
		return ErrClosed
	}
	w.graph.UpdateWorld()
	return w.WriteGPU()
}

// RemoveObject removes an object everywhere it is resident: its transform
// node plus any skin palette, morph weights and material uniform stored
// under the same key. Store entries the object never had are skipped.
// Children of the removed node are reparented to its parent.
func (w *World) RemoveObject(k key.Key) error {
	if err := w.graph.Remove(k); err != nil {
		return err
	}
	w.skins.Remove(k)
	w.morphs.Remove(k)
	w.materials.Remove(k)
	return nil
}

// WorldStats is a point-in-time snapshot of arena occupancy and device
// sync activity. The sync fields stay zero for a world without a device.
type WorldStats struct {
	Transforms alloc.SlotsStats
	Skins      alloc.SlotsStats
	Morphs     alloc.BuddyStats
	Materials  alloc.BuddyStats

	TransformSync gpu.SyncStats
	SkinSync      gpu.SyncStats
	MorphSync     gpu.SyncStats
	MaterialSync  gpu.SyncStats

	BindGroupRebuilds uint64
}

// Stats returns a snapshot of the world's arenas and device sync counters.
func (w *World) Stats() WorldStats {
	st := WorldStats{
		Transforms: w.graph.Stats(),
		Skins:      w.skins.Stats(),
		Morphs:     w.morphs.Stats(),
		Materials:  w.materials.Stats(),
	}
	if w.transformBuf != nil {
		st.TransformSync = w.transformBuf.Stats()
		st.SkinSync = w.skinBuf.Stats()
		st.MorphSync = w.morphBuf.Stats()
		st.MaterialSync = w.materialBuf.Stats()
	}
	if w.bindings != nil {
		st.BindGroupRebuilds = w.bindings.Rebuilds()
	}
	return st
}

// Close releases the world's device-side resources: the bind group and
// the four buffers. The device context belongs to the caller and stays
// open. Safe to call more than once. A closed world still serves
// CPU-side reads.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true
	if w.bindings != nil {
		w.bindings.Destroy()
		w.bindings = nil
	}
	for _, buf := range w.syncedBuffers() {
		if buf != nil {
			buf.Destroy()
		}
	}
	w.transformBuf, w.skinBuf, w.morphBuf, w.materialBuf = nil, nil, nil, nil
}

func (w *World) syncedBuffers() [4]*gpu.SyncedBuffer {
	return [4]*gpu.SyncedBuffer{w.transformBuf, w.skinBuf, w.morphBuf, w.materialBuf}
}
