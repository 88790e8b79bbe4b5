// Package math32 provides the float32 linear algebra used by the resident
// buffer stores: column-major 4x4 matrices and the translation/rotation/scale
// triples that local transforms are authored in.
//
// Matrices are column-major to match GPU buffer layout, so a Mat4 can be
// serialized into a shader-visible buffer without reordering. Rotations are
// Euler angles in radians, applied in Y, X, Z order.
package math32

import (
	"encoding/binary"
	"math"
)

// Mat4SizeBytes is the serialized size of one Mat4: 16 float32 values.
const Mat4SizeBytes = 64

// Vec3 is a 3-component float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Mat4 is a 4x4 matrix in column-major order: element (row r, column c)
// is stored at index c*4+r.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns the product m * n, the matrix that applies n first and m second.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Translate returns a translation matrix.
func Translate(v Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// Scale returns a scale matrix.
func Scale(v Vec3) Mat4 {
	var m Mat4
	m[0], m[5], m[10], m[15] = v.X, v.Y, v.Z, 1
	return m
}

// RotateX returns a rotation of angle radians about the X axis.
func RotateX(angle float32) Mat4 {
	s, c := sincos(angle)
	m := Identity()
	m[5], m[9] = c, -s
	m[6], m[10] = s, c
	return m
}

// RotateY returns a rotation of angle radians about the Y axis.
func RotateY(angle float32) Mat4 {
	s, c := sincos(angle)
	m := Identity()
	m[0], m[8] = c, s
	m[2], m[10] = -s, c
	return m
}

// RotateZ returns a rotation of angle radians about the Z axis.
func RotateZ(angle float32) Mat4 {
	s, c := sincos(angle)
	m := Identity()
	m[0], m[4] = c, -s
	m[1], m[5] = s, c
	return m
}

func sincos(angle float32) (sin, cos float32) {
	s, c := math.Sincos(float64(angle))
	return float32(s), float32(c)
}

// PutBytes serializes m into dst as 16 little-endian float32 values.
// dst must be at least Mat4SizeBytes long.
func (m Mat4) PutBytes(dst []byte) {
	_ = dst[Mat4SizeBytes-1]
	for i, f := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

// Mat4FromBytes reads a matrix previously written by PutBytes.
func Mat4FromBytes(src []byte) Mat4 {
	_ = src[Mat4SizeBytes-1]
	var m Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return m
}

// PutFloats serializes src into dst as little-endian float32 values.
// dst must hold at least 4*len(src) bytes.
func PutFloats(dst []byte, src []float32) {
	for i, f := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

// Floats reads n little-endian float32 values from src.
func Floats(src []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out
}

// TRS is a local transform authored as translation, rotation and scale.
// Rotation is Euler angles in radians, composed in Y, X, Z order.
type TRS struct {
	Translation Vec3
	Rotation    Vec3
	Scale       Vec3
}

// IdentityTRS returns the transform that maps everything to itself
// (zero translation, zero rotation, unit scale).
func IdentityTRS() TRS {
	return TRS{Scale: Vec3{X: 1, Y: 1, Z: 1}}
}

// Mat4 composes the transform into a matrix: translate * rotate * scale,
// with rotation composed as Ry * Rx * Rz.
func (t TRS) Mat4() Mat4 {
	m := RotateY(t.Rotation.Y).Mul(RotateX(t.Rotation.X)).Mul(RotateZ(t.Rotation.Z))
	for c, s := range [3]float32{t.Scale.X, t.Scale.Y, t.Scale.Z} {
		m[c*4+0] *= s
		m[c*4+1] *= s
		m[c*4+2] *= s
	}
	m[12], m[13], m[14] = t.Translation.X, t.Translation.Y, t.Translation.Z
	return m
}
