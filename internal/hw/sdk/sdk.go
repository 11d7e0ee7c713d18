// Package sdk is the narrow boundary between unicam and vendor camera SDKs.
//
// A vendor binding provides a Driver (device discovery and opening) and a
// Device (arm/disarm, software trigger, frame polling and raw node access).
// Nothing above this package touches vendor symbols directly.
package sdk

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoDevice is returned when discovery finds no camera or the id is unknown.
	ErrNoDevice = errors.New("no camera device found")
	// ErrUnknownNode is returned for a node name the device does not expose.
	ErrUnknownNode = errors.New("unknown node")
	// ErrReadOnly is returned when writing a node the device does not allow writing.
	ErrReadOnly = errors.New("node is read-only")
	// ErrBusy is a transient condition; the write may succeed when retried.
	ErrBusy = errors.New("device busy")
	// ErrNotArmed is returned by Disarm, IssueSoftwareTrigger and PollFrame on a disarmed device.
	ErrNotArmed = errors.New("device not armed")
	// ErrArmed is returned by Arm on a device that is already armed.
	ErrArmed = errors.New("device already armed")
	// ErrDisconnected means the device went away or was disposed.
	ErrDisconnected = errors.New("device disconnected")
)

// Frame is one image read out from the sensor.
type Frame struct {
	Index     uint64 // hardware frame counter
	Width     int
	Height    int
	Format    string // pixel format name, e.g. "Mono16" or "BGR8"
	Pix       []byte
	Timestamp time.Time
}

// Clone returns a deep copy of f. Drivers may reuse their buffers, so
// frames handed to callers are always clones.
func (f Frame) Clone() Frame {
	c := f
	if f.Pix != nil {
		c.Pix = make([]byte, len(f.Pix))
		copy(c.Pix, f.Pix)
	}
	return c
}

// Info identifies an opened device.
type Info struct {
	Model        string
	Vendor       string
	Version      string
	SerialNumber string
	Name         string
	SensorType   string
}

// Driver enumerates and opens devices of one vendor SDK.
type Driver interface {
	// Enumerate returns the ids of the attached devices.
	Enumerate(ctx context.Context) ([]string, error)
	// Open opens the device with the given id.
	Open(ctx context.Context, id string) (Device, error)
	// Close releases the SDK itself. Devices must be disposed first.
	Close() error
}

// Device is an opened camera.
type Device interface {
	// Arm prepares acquisition. framesPerTrigger 0 means free-running
	// after the first trigger; framesToBuffer bounds the driver queue.
	Arm(framesPerTrigger, framesToBuffer int) error
	Disarm() error
	IssueSoftwareTrigger() error
	// PollFrame returns the next pending frame. ok is false when no frame
	// is ready yet, which is not an error.
	PollFrame() (f Frame, ok bool, err error)

	// Get and Set access a raw vendor node by name.
	Get(node string) (interface{}, error)
	Set(node string, value interface{}) error

	Info() Info
	Dispose() error
}
