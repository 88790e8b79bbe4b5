package residency

import "github.com/dakom/awsm-renderer-sub001/gpu"

// WorldOption configures a World during creation.
// Use functional options to customize World behavior.
//
// Example:
//
//	// CPU-side staging only
//	world, err := residency.NewWorld()
//
//	// GPU-resident with custom arena sizing
//	world, err := residency.NewWorld(
//	    residency.WithDevice(ctx),
//	    residency.WithTransformCapacity(1024),
//	)
type WorldOption func(*worldOptions)

// worldOptions holds optional configuration for World creation.
type worldOptions struct {
	device             *gpu.Context
	transformCapacity  int
	paletteCapacity    int
	jointsPerPalette   int
	morphArenaBytes    int
	materialArenaBytes int
}

// defaultWorldOptions returns the default world options.
func defaultWorldOptions() worldOptions {
	return worldOptions{
		device:             nil, // CPU-side staging only
		transformCapacity:  64,
		paletteCapacity:    16,
		jointsPerPalette:   0, // skin.DefaultJointsPerPalette
		morphArenaBytes:    4096,
		materialArenaBytes: 4096,
	}
}

// WithDevice attaches a GPU device context to the World. With a device
// attached, WriteGPU mirrors the staging arenas into device buffers and
// maintains the shared bind group. Without one the World stages CPU-side
// only and WriteGPU reports ErrNoDevice.
//
// The caller keeps ownership of the context: World.Close does not close it.
//
// Example:
//
//	ctx, err := gpu.OpenDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//	world, err := residency.NewWorld(residency.WithDevice(ctx))
func WithDevice(ctx *gpu.Context) WorldOption {
	return func(o *worldOptions) {
		o.device = ctx
	}
}

// WithTransformCapacity sets how many transform slots the world allocates
// up front. Inserting past capacity grows the arena and recreates the
// device buffer, so size this for the expected scene.
func WithTransformCapacity(n int) WorldOption {
	return func(o *worldOptions) {
		o.transformCapacity = n
	}
}

// WithJointsPerPalette sets the fixed joint count of every skin palette.
// Palettes with fewer joints are zero-padded to this bound; palettes with
// more are rejected. Non-positive values keep skin.DefaultJointsPerPalette.
func WithJointsPerPalette(n int) WorldOption {
	return func(o *worldOptions) {
		o.jointsPerPalette = n
	}
}

// WithPaletteCapacity sets how many skin palettes the world allocates
// up front.
func WithPaletteCapacity(n int) WorldOption {
	return func(o *worldOptions) {
		o.paletteCapacity = n
	}
}

// WithMorphArena sets the initial size in bytes of the morph weight arena.
// The arena rounds up to a power of two and doubles when it fills.
func WithMorphArena(sizeBytes int) WorldOption {
	return func(o *worldOptions) {
		o.morphArenaBytes = sizeBytes
	}
}

// WithMaterialArena sets the initial size in bytes of the material
// uniform arena. The arena rounds up to a power of two and doubles when
// it fills.
func WithMaterialArena(sizeBytes int) WorldOption {
	return func(o *worldOptions) {
		o.materialArenaBytes = sizeBytes
	}
}
