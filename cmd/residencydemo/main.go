// Command residencydemo exercises the residency layer end to end: it keeps
// a small animated scene resident on a GPU device and prints the sync
// traffic frame by frame, including arena growth and bind group rebuilds.
//
// The default noop backend runs anywhere; pass -backend vulkan to open a
// real adapter.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	residency "github.com/dakom/awsm-renderer-sub001"
	"github.com/dakom/awsm-renderer-sub001/gpu"
	"github.com/dakom/awsm-renderer-sub001/key"
	"github.com/dakom/awsm-renderer-sub001/math32"
)

func main() {
	var (
		backend = flag.String("backend", "noop", "GPU backend: noop or vulkan")
		objects = flag.Int("objects", 24, "objects to insert")
		frames  = flag.Int("frames", 8, "frames to simulate")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		residency.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	ctx, cleanup, err := openContext(*backend)
	if err != nil {
		log.Fatalf("open %s backend: %v", *backend, err)
	}
	defer cleanup()

	// Deliberately small arenas so the scene forces growth mid-run.
	world, err := residency.NewWorld(
		residency.WithDevice(ctx),
		residency.WithTransformCapacity(8),
		residency.WithPaletteCapacity(4),
		residency.WithMorphArena(1024),
		residency.WithMaterialArena(1024),
	)
	if err != nil {
		log.Fatalf("create world: %v", err)
	}
	defer world.Close()

	fmt.Println("Residency Demo")
	fmt.Println("==============")
	fmt.Printf("Backend: %s, adapter: %q, objects: %d, frames: %d\n\n", *backend, ctx.AdapterName(), *objects, *frames)

	hub, keys := buildScene(world, *objects)
	fmt.Printf("Scene: %d objects under one hub, %d transform nodes total\n\n", len(keys), world.Transforms().Len())

	angle := float32(0)
	for frame := range *frames {
		// Remove a third of the scene halfway through to show key reuse.
		if frame == *frames/2 {
			kept := keys[:0]
			removed := 0
			for i, k := range keys {
				if i%3 == 0 {
					if err := world.RemoveObject(k); err != nil {
						log.Fatalf("remove %v: %v", k, err)
					}
					removed++
					continue
				}
				kept = append(kept, k)
			}
			keys = kept
			fmt.Printf("          removed %d objects\n", removed)
		}

		// Spin the hub; every child re-derives through it.
		angle += 0.1
		hubLocal := math32.IdentityTRS()
		hubLocal.Rotation.Y = angle
		if err := world.Transforms().SetLocal(hub, hubLocal); err != nil {
			log.Fatalf("spin hub: %v", err)
		}

		// Animate morph weights on half the objects.
		for i, k := range keys {
			if i%2 == 0 {
				world.Morphs().SetWeights(k, []float32{angle, 1 - angle, float32(i)})
			}
		}

		if err := world.Frame(); err != nil {
			log.Fatalf("frame %d: %v", frame, err)
		}

		dirty := world.TakeDirtyMeshes()
		st := world.Stats()
		fmt.Printf("frame %2d: %2d meshes moved, uploads t=%d s=%d m=%d u=%d, rebuilds %d\n",
			frame, len(dirty),
			st.TransformSync.Uploads, st.SkinSync.Uploads,
			st.MorphSync.Uploads, st.MaterialSync.Uploads,
			st.BindGroupRebuilds)
	}

	st := world.Stats()
	fmt.Println("\nFinal state")
	fmt.Printf("  transforms: %v\n", st.Transforms)
	fmt.Printf("  skins:      %v\n", st.Skins)
	fmt.Printf("  morphs:     %v\n", st.Morphs)
	fmt.Printf("  materials:  %v\n", st.Materials)
	fmt.Printf("  buffer recreates: t=%d s=%d m=%d u=%d\n",
		st.TransformSync.Recreates, st.SkinSync.Recreates,
		st.MorphSync.Recreates, st.MaterialSync.Recreates)

	if len(keys) > 0 {
		k := keys[0]
		toff, _ := world.Transforms().Offset(k)
		moff, msz, _ := world.Materials().Range(k)
		fmt.Printf("  %v: transform at +%d, material at +%d (%d B block)\n", k, toff, moff, msz)
	}

	fmt.Println("\nPipeline probe")
	if err := probePipeline(ctx, world); err != nil {
		fmt.Printf("  skipped: %v\n", err)
	} else {
		fmt.Println("  compute pipeline created against the residency layout ✓")
	}
}

// openContext opens the requested backend. The returned cleanup releases
// whatever the context does not own.
func openContext(backend string) (*gpu.Context, func(), error) {
	switch backend {
	case "vulkan":
		ctx, err := gpu.OpenDefault()
		if err != nil {
			return nil, nil, err
		}
		return ctx, ctx.Close, nil

	case "noop":
		api := noop.API{}
		instance, err := api.CreateInstance(nil)
		if err != nil {
			return nil, nil, err
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			return nil, nil, fmt.Errorf("no noop adapters")
		}
		openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return nil, nil, err
		}
		ctx, err := gpu.NewContext(openDev.Device, openDev.Queue)
		if err != nil {
			openDev.Device.Destroy()
			instance.Destroy()
			return nil, nil, err
		}
		cleanup := func() {
			openDev.Device.Destroy()
			instance.Destroy()
		}
		return ctx, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// buildScene inserts a hub with n children and fills the stores: every
// object gets a material tint, every second one morph weights, every
// third one a skin palette.
func buildScene(world *residency.World, n int) (key.Key, []key.Key) {
	hub, err := world.Transforms().Insert(math32.IdentityTRS(), key.NoKey)
	if err != nil {
		log.Fatalf("insert hub: %v", err)
	}

	keys := make([]key.Key, 0, n)
	for i := range n {
		local := math32.IdentityTRS()
		local.Translation = math32.Vec3{X: float32(i%5) * 2, Y: float32(i/5) * 2}
		k, err := world.Transforms().Insert(local, hub)
		if err != nil {
			log.Fatalf("insert object %d: %v", i, err)
		}
		keys = append(keys, k)

		tint := make([]byte, 16)
		math32.PutFloats(tint, []float32{
			float32(i) / float32(n), 0.5, 1 - float32(i)/float32(n), 1,
		})
		world.Materials().SetUniform(k, tint)

		if i%2 == 0 {
			world.Morphs().SetWeights(k, []float32{0, 1, float32(i)})
		}
		if i%3 == 0 {
			palette := make([]math32.Mat4, 4)
			for j := range palette {
				palette[j] = math32.Identity()
			}
			if err := world.Skins().SetJoints(k, palette); err != nil {
				log.Fatalf("set joints %d: %v", i, err)
			}
		}
	}
	return hub, keys
}

// probeShaderWGSL reads every residency binding so that creating a
// pipeline from it validates the whole bind group layout.
const probeShaderWGSL = `
struct MaterialTint {
    tint: vec4<f32>,
}

@group(0) @binding(0) var<storage, read> world_mats: array<mat4x4<f32>>;
@group(0) @binding(1) var<storage, read> skin_mats: array<mat4x4<f32>>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<uniform> material: MaterialTint;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= arrayLength(&weights)) {
        return;
    }
    let m = world_mats[0] * skin_mats[0];
    let w = weights[i] * material.tint.x;
    _ = m;
    _ = w;
}
`

// probePipeline compiles the probe shader and builds a compute pipeline
// against the world's bind group layout. Some naga versions cannot
// compile runtime-sized arrays yet; the caller treats failure as a skip.
func probePipeline(ctx *gpu.Context, world *residency.World) error {
	spirv, err := compileWGSL(probeShaderWGSL)
	if err != nil {
		return fmt.Errorf("compile probe shader: %w", err)
	}

	device := ctx.Device()
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "residency_probe",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	defer device.DestroyShaderModule(module)

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "residency_probe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{world.Bindings().Layout()},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	defer device.DestroyPipelineLayout(pipeLayout)

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "residency_probe_pipeline",
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	device.DestroyComputePipeline(pipeline)
	return nil
}

// compileWGSL compiles WGSL to SPIR-V words. SPIR-V is little-endian
// 32-bit words.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
