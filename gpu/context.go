// Package gpu owns the device side of resource residency: a thin context
// over wgpu/hal plus the sync protocol that mirrors CPU staging arenas
// into device buffers.
//
// The package never creates a device behind the caller's back. Open one
// with OpenDefault, or wrap a device shared by the host application via
// NewContext or FromDeviceProvider.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Context errors.
var (
	// ErrNilDevice is returned when a nil device is supplied.
	ErrNilDevice = errors.New("gpu: device is nil")

	// ErrNilQueue is returned when a nil queue is supplied.
	ErrNilQueue = errors.New("gpu: queue is nil")

	// ErrNoHALAccess is returned when a device provider does not expose
	// the underlying HAL device and queue.
	ErrNoHALAccess = errors.New("gpu: device provider does not expose HAL types")

	// ErrGPUUnavailable is returned by OpenDefault when no GPU backend is
	// compiled in or no adapter is present.
	ErrGPUUnavailable = errors.New("gpu: no GPU backend available")
)

// Context bundles a HAL device with its submission queue.
//
// A context opened by OpenDefault owns the device and destroys it on
// Close. A context wrapping a shared device leaves ownership with the
// host application.
type Context struct {
	instance hal.Instance // nil when the device is externally owned
	device   hal.Device
	queue    hal.Queue

	adapterName string
	external    bool
}

// NewContext wraps an existing device and queue. The caller keeps
// ownership: Close will not destroy either.
func NewContext(device hal.Device, queue hal.Queue) (*Context, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	return &Context{device: device, queue: queue, external: true}, nil
}

// FromDeviceProvider wraps the shared device exposed by a host framework.
// The provider must additionally expose the raw HAL handles through
// HalDevice() any and HalQueue() any, as gogpu device providers do.
func FromDeviceProvider(provider gpucontext.DeviceProvider) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALAccess)
	}
	return &Context{device: device, queue: queue, external: true}, nil
}

// Device returns the HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the HAL submission queue.
func (c *Context) Queue() hal.Queue { return c.queue }

// AdapterName returns the adapter name when the context opened its own
// device, or "" for shared devices.
func (c *Context) AdapterName() string { return c.adapterName }

// Close destroys the device and instance when the context owns them.
// Shared devices are left alone. Safe to call more than once.
func (c *Context) Close() {
	if !c.external {
		if c.device != nil {
			c.device.Destroy()
		}
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
}
