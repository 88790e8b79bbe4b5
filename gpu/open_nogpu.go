//go:build nogpu

package gpu

// OpenDefault reports the GPU unavailable when backends are compiled out
// with the nogpu tag. Contexts wrapping a shared device still work.
func OpenDefault() (*Context, error) {
	return nil, ErrGPUUnavailable
}
