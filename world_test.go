package residency

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/dakom/awsm-renderer-sub001/gpu"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/math32"
	"github.com/dakom/awsm-renderer-sub001/skin"
)

// createNoopContext opens a noop device and wraps it in a shared context.
func createNoopContext(t *testing.T) *gpu.Context {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	ctx, err := gpu.NewContext(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ctx
}

func translated(x, y, z float32) math32.TRS {
	l := math32.IdentityTRS()
	l.Translation = math32.Vec3{X: x, Y: y, Z: z}
	return l
}

func TestNewWorldCPUOnly(t *testing.T) {
	w, err := NewWorld()
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	defer w.Close()

	if w.Device() != nil {
		t.Error("CPU-only world should have no device")
	}
	if w.Bindings() != nil {
		t.Error("CPU-only world should have no bindings")
	}
	if got := w.Skins().JointsPerPalette(); got != skin.DefaultJointsPerPalette {
		t.Errorf("JointsPerPalette() = %d, want default %d", got, skin.DefaultJointsPerPalette)
	}

	// Staging still works without a device.
	k, err := w.Transforms().Insert(translated(1, 0, 0), w.Transforms().Root())
	if err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	w.UpdateWorld()
	if meshes := w.TakeDirtyMeshes(); !slices.Contains(meshes, k) {
		t.Errorf("dirty meshes %v missing %v", meshes, k)
	}

	if err := w.WriteGPU(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("WriteGPU() = %v, want ErrNoDevice", err)
	}
	if err := w.Frame(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Frame() = %v, want ErrNoDevice", err)
	}
}

func TestWorldFrameUploadsAllArenas(t *testing.T) {
	ctx := createNoopContext(t)
	w, err := NewWorld(WithDevice(ctx))
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	t.Cleanup(w.Close)

	k, err := w.Transforms().Insert(translated(2, 0, 0), key.NoKey)
	if err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	if err := w.Skins().SetJoints(k, []math32.Mat4{math32.Identity(), math32.Translate(math32.Vec3{Y: 1})}); err != nil {
		t.Fatalf("SetJoints() = %v", err)
	}
	w.Morphs().SetWeights(k, []float32{0.25, 0.75})
	w.Materials().SetUniform(k, []byte{1, 2, 3, 4})

	if err := w.Frame(); err != nil {
		t.Fatalf("Frame() = %v", err)
	}

	// Zero-parent insert attaches under the root.
	if p, _ := w.Transforms().Parent(k); p != w.Transforms().Root() {
		t.Errorf("Parent() = %v, want root", p)
	}
	world, err := w.Transforms().World(k)
	if err != nil {
		t.Fatalf("World() = %v", err)
	}
	if world[12] != 2 || world[13] != 0 || world[14] != 0 {
		t.Errorf("world translation = [%g %g %g], want [2 0 0]", world[12], world[13], world[14])
	}
	if meshes := w.TakeDirtyMeshes(); !slices.Contains(meshes, k) {
		t.Errorf("dirty meshes %v missing %v", meshes, k)
	}

	st := w.Stats()
	for name, sync := range map[string]gpu.SyncStats{
		"transforms": st.TransformSync,
		"skins":      st.SkinSync,
		"morphs":     st.MorphSync,
		"materials":  st.MaterialSync,
	} {
		if sync.Uploads != 1 {
			t.Errorf("%s uploads = %d, want 1", name, sync.Uploads)
		}
		if sync.Recreates != 0 {
			t.Errorf("%s recreates = %d, want 0", name, sync.Recreates)
		}
	}
	if st.BindGroupRebuilds != 0 {
		t.Errorf("bind group rebuilds = %d, want 0", st.BindGroupRebuilds)
	}

	// A clean frame uploads nothing and signals nothing.
	if err := w.Frame(); err != nil {
		t.Fatalf("clean Frame() = %v", err)
	}
	if st2 := w.Stats(); st2 != st {
		t.Errorf("clean frame changed stats:\n  before %+v\n  after  %+v", st, st2)
	}
	if meshes := w.TakeDirtyMeshes(); len(meshes) != 0 {
		t.Errorf("clean frame produced dirty meshes %v", meshes)
	}
}

func TestWorldGrowthRebuildsBindGroup(t *testing.T) {
	ctx := createNoopContext(t)
	w, err := NewWorld(WithDevice(ctx), WithTransformCapacity(2))
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	t.Cleanup(w.Close)

	if err := w.Frame(); err != nil {
		t.Fatalf("baseline Frame() = %v", err)
	}
	if got := w.Bindings().Rebuilds(); got != 0 {
		t.Fatalf("rebuilds after baseline = %d, want 0", got)
	}

	// Root holds one of the two slots; two inserts overflow the arena.
	for i := range 2 {
		if _, err := w.Transforms().Insert(translated(float32(i), 0, 0), key.NoKey); err != nil {
			t.Fatalf("Insert(%d) = %v", i, err)
		}
	}
	if err := w.Frame(); err != nil {
		t.Fatalf("growth Frame() = %v", err)
	}

	st := w.Stats()
	if st.TransformSync.Recreates != 1 {
		t.Errorf("transform recreates = %d, want 1", st.TransformSync.Recreates)
	}
	if st.Transforms.Capacity != 6 {
		t.Errorf("transform capacity = %d, want 6", st.Transforms.Capacity)
	}
	if st.BindGroupRebuilds != 1 {
		t.Errorf("bind group rebuilds = %d, want 1", st.BindGroupRebuilds)
	}
	if w.Bindings().Layout() == nil {
		t.Error("layout lost across growth; pipelines would go stale")
	}

	// The rebuild signal is consumed: a clean frame does not rebuild again.
	if err := w.Frame(); err != nil {
		t.Fatalf("clean Frame() = %v", err)
	}
	if got := w.Bindings().Rebuilds(); got != 1 {
		t.Errorf("rebuilds after clean frame = %d, want 1", got)
	}
}

func TestRemoveObjectSweepsStores(t *testing.T) {
	w, err := NewWorld()
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	defer w.Close()

	k, err := w.Transforms().Insert(translated(1, 0, 0), key.NoKey)
	if err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	if err := w.Skins().SetJoints(k, []math32.Mat4{math32.Identity()}); err != nil {
		t.Fatalf("SetJoints() = %v", err)
	}
	w.Morphs().SetWeights(k, []float32{1})
	w.Materials().SetUniform(k, []byte{9})

	child, err := w.Transforms().Insert(translated(0, 1, 0), k)
	if err != nil {
		t.Fatalf("Insert(child) = %v", err)
	}

	if err := w.RemoveObject(k); err != nil {
		t.Fatalf("RemoveObject() = %v", err)
	}
	if w.Transforms().Alive(k) {
		t.Error("removed object still alive in graph")
	}
	if p, _ := w.Transforms().Parent(child); p != w.Transforms().Root() {
		t.Errorf("orphan parent = %v, want root", p)
	}
	if _, err := w.Skins().Joints(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Joints() after remove = %v, want ErrNotFound", err)
	}
	if _, err := w.Morphs().Weights(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Weights() after remove = %v, want ErrNotFound", err)
	}
	if _, err := w.Materials().Uniform(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("Uniform() after remove = %v, want ErrNotFound", err)
	}

	// Double remove fails on the graph side.
	if err := w.RemoveObject(k); !errors.Is(err, key.ErrNotFound) {
		t.Errorf("second RemoveObject() = %v, want ErrNotFound", err)
	}

	// An object with no store entries removes cleanly.
	if err := w.RemoveObject(child); err != nil {
		t.Errorf("RemoveObject(bare) = %v", err)
	}
}

func TestWorldCloseIsIdempotent(t *testing.T) {
	ctx := createNoopContext(t)
	w, err := NewWorld(WithDevice(ctx))
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	if err := w.Frame(); err != nil {
		t.Fatalf("Frame() = %v", err)
	}

	w.Close()
	if err := w.WriteGPU(); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteGPU() after close = %v, want ErrClosed", err)
	}
	if err := w.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame() after close = %v, want ErrClosed", err)
	}
	if w.Bindings() != nil {
		t.Error("Bindings() non-nil after close")
	}

	// CPU-side reads survive closing the device resources.
	if got := w.Transforms().Len(); got != 1 {
		t.Errorf("Len() after close = %d, want 1", got)
	}

	w.Close()
}

func TestWorldOptionsApply(t *testing.T) {
	w, err := NewWorld(
		WithTransformCapacity(8),
		WithJointsPerPalette(16),
		WithPaletteCapacity(4),
		WithMorphArena(512),
		WithMaterialArena(1024),
	)
	if err != nil {
		t.Fatalf("NewWorld() = %v", err)
	}
	defer w.Close()

	st := w.Stats()
	if st.Transforms.Capacity != 8 {
		t.Errorf("transform capacity = %d, want 8", st.Transforms.Capacity)
	}
	if got := w.Skins().JointsPerPalette(); got != 16 {
		t.Errorf("JointsPerPalette() = %d, want 16", got)
	}
	if st.Skins.Capacity != 4 {
		t.Errorf("palette capacity = %d, want 4", st.Skins.Capacity)
	}
	if st.Morphs.Size != 512 {
		t.Errorf("morph arena = %d, want 512", st.Morphs.Size)
	}
	if st.Materials.Size != 1024 {
		t.Errorf("material arena = %d, want 1024", st.Materials.Size)
	}
}
