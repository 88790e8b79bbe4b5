// Package residency keeps per-object render data resident in GPU buffers.
//
// # Overview
//
// residency is the resource layer of a retained-mode renderer built on the
// GoGPU ecosystem. It owns the CPU staging arenas for object transforms,
// skinning palettes, morph weights and material uniforms, mirrors them into
// device buffers, and keeps a shared bind group valid while the arenas grow.
//
// Objects are identified by generational keys (package key). A key minted
// for an object stays valid until the object is removed; reusing a slot
// bumps the generation, so stale keys fail lookups instead of aliasing.
//
// # Quick Start
//
//	import "github.com/dakom/awsm-renderer-sub001"
//
//	ctx, err := gpu.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	world, err := residency.NewWorld(residency.WithDevice(ctx))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer world.Close()
//
//	// Insert an object under the root and give it a material.
//	local := math32.IdentityTRS()
//	local.Translation = math32.Vec3{X: 2}
//	k, _ := world.Transforms().Insert(local, world.Transforms().Root())
//	world.Materials().SetUniform(k, uniformBytes)
//
//	// Per frame: edit, propagate, sync.
//	local.Rotation.Y += 0.01
//	world.Transforms().SetLocal(k, local)
//	if err := world.Frame(); err != nil {
//		log.Fatal(err)
//	}
//
// # Frame Protocol
//
// A frame has three phases. Scene edits (insert, remove, set local, set
// parent, store writes) happen first. UpdateWorld then re-derives world
// matrices for the dirty subtrees. WriteGPU last: each staging arena that
// changed is uploaded, arenas that grew get a fresh device buffer, and the
// bind group is rebuilt when any buffer moved. Frame runs the last two
// phases back to back.
//
// # Architecture
//
// The module is organized into:
//   - Root: World facade, logging, options
//   - key, math32: generational keys, float32 linear algebra
//   - alloc: fixed-size slot arena and buddy arena with staged-upload state
//   - transform: scene graph over a slot arena, dirty propagation
//   - skin, morph, material: typed stores over the arenas
//   - gpu: device context, synced buffers, bind group maintenance
//
// CPU-side use requires no GPU at all: build a World without WithDevice and
// call UpdateWorld directly. The gpu package activates only when a device
// context is attached.
package residency

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
