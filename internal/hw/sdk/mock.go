package sdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
)

// MockConfig describes a simulated device.
type MockConfig struct {
	Info      Info
	Nodes     map[string]interface{} // initial node values
	FrameTime time.Duration          // sensor readout time per frame
	Width     int                    // frame width (kept small on purpose, not the node value)
	Height    int
	Format    string
}

// MockDevice is an in-memory Device. It honours the arm/trigger/poll
// protocol with a configurable frame time so capture logic can be tested
// without hardware. Used for development on PC or testing.
type MockDevice struct {
	mu  sync.Mutex
	cfg MockConfig

	nodes    map[string]interface{}
	readOnly map[string]bool
	clamps   map[string][2]float64
	failures map[string][]error
	disarms  []error

	armed            bool
	framesPerTrigger int
	framesToBuffer   int
	freeRunning      bool
	remaining        int
	nextAt           time.Time
	pending          []Frame
	index            uint64
	triggers         int

	stalled      bool
	disconnected bool
	disposed     bool
}

// NewMockDevice creates a simulated device from cfg.
func NewMockDevice(cfg MockConfig) *MockDevice {
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 48
	}
	if cfg.Format == "" {
		cfg.Format = "Mono8"
	}
	nodes := make(map[string]interface{}, len(cfg.Nodes))
	for k, v := range cfg.Nodes {
		nodes[k] = v
	}
	return &MockDevice{
		cfg:      cfg,
		nodes:    nodes,
		readOnly: make(map[string]bool),
		clamps:   make(map[string][2]float64),
		failures: make(map[string][]error),
	}
}

// NewGenICamMock returns a device exposing GenICam-style nodes, like a
// machine-vision camera with native streaming and auto controls.
func NewGenICamMock() *MockDevice {
	return NewMockDevice(MockConfig{
		Info: Info{
			Model:        "Blackfly S BFS-U3-23S3C",
			Vendor:       "FLIR",
			Version:      "1707.0.125.0",
			SerialNumber: "20123456",
			Name:         "Blackfly S",
		},
		Nodes: map[string]interface{}{
			"ExposureTime":               10000.0,
			"ExposureAuto":               "Continuous",
			"AcquisitionFrameRate":       30.0,
			"AcquisitionFrameRateEnable": false,
			"Gain":                       0.0,
			"GainAuto":                   "Continuous",
			"Height":                     1200,
			"Width":                      1920,
			"PixelFormat":                "BayerRG8",
			"GammaEnable":                true,
			"Gamma":                      0.8,
			"DeviceModelName":            "Blackfly S BFS-U3-23S3C",
		},
		FrameTime: 5 * time.Millisecond,
		Format:    "BGR8",
	})
}

// NewTSIMock returns a device exposing scientific-camera attributes
// without framerate or auto controls.
func NewTSIMock() *MockDevice {
	d := NewMockDevice(MockConfig{
		Info: Info{
			Model:        "CS2100M-USB",
			Vendor:       "Thorlabs",
			Version:      "1.0.3",
			SerialNumber: "17345",
			Name:         "Quantalux",
			SensorType:   "MONOCHROME",
		},
		Nodes: map[string]interface{}{
			"exposure_time_us":     10000,
			"gain":                 0,
			"sensor_height_pixels": 1080,
			"sensor_width_pixels":  1920,
			"frame_time_us":        50000,
		},
		FrameTime: 5 * time.Millisecond,
		Format:    "Mono16",
	})
	d.SetReadOnly("sensor_height_pixels")
	d.SetReadOnly("sensor_width_pixels")
	d.SetReadOnly("frame_time_us")
	return d
}

func (d *MockDevice) checkAlive() error {
	if d.disposed || d.disconnected {
		return ErrDisconnected
	}
	return nil
}

func (d *MockDevice) Arm(framesPerTrigger, framesToBuffer int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if d.armed {
		return ErrArmed
	}
	if framesToBuffer <= 0 {
		framesToBuffer = 1
	}
	debug.Trace("mock %s: arm framesPerTrigger=%d framesToBuffer=%d", d.cfg.Info.SerialNumber, framesPerTrigger, framesToBuffer)
	d.armed = true
	d.framesPerTrigger = framesPerTrigger
	d.framesToBuffer = framesToBuffer
	d.freeRunning = false
	d.remaining = 0
	d.pending = nil
	return nil
}

func (d *MockDevice) Disarm() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if !d.armed {
		return ErrNotArmed
	}
	if len(d.disarms) > 0 {
		err := d.disarms[0]
		d.disarms = d.disarms[1:]
		return err
	}
	debug.Trace("mock %s: disarm", d.cfg.Info.SerialNumber)
	d.armed = false
	d.freeRunning = false
	d.remaining = 0
	d.pending = nil
	return nil
}

func (d *MockDevice) IssueSoftwareTrigger() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if !d.armed {
		return ErrNotArmed
	}
	d.triggers++
	idle := !d.freeRunning && d.remaining == 0
	if d.framesPerTrigger == 0 {
		d.freeRunning = true
	} else {
		d.remaining += d.framesPerTrigger
	}
	if idle {
		d.nextAt = time.Now().Add(d.cfg.FrameTime)
	}
	return nil
}

func (d *MockDevice) PollFrame() (Frame, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return Frame{}, false, err
	}
	if !d.armed {
		return Frame{}, false, ErrNotArmed
	}
	d.produce(time.Now())
	if len(d.pending) == 0 {
		return Frame{}, false, nil
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, true, nil
}

// produce moves every frame whose readout finished before now into the
// pending queue, dropping the oldest when the buffer is full.
func (d *MockDevice) produce(now time.Time) {
	if d.stalled {
		return
	}
	for d.freeRunning || d.remaining > 0 {
		if now.Before(d.nextAt) {
			return
		}
		d.index++
		f := Frame{
			Index:     d.index,
			Width:     d.cfg.Width,
			Height:    d.cfg.Height,
			Format:    d.cfg.Format,
			Pix:       make([]byte, d.cfg.Width*d.cfg.Height),
			Timestamp: d.nextAt,
		}
		for i := range f.Pix {
			f.Pix[i] = byte(d.index)
		}
		if len(d.pending) >= d.framesToBuffer {
			d.pending = d.pending[1:]
		}
		d.pending = append(d.pending, f)
		if !d.freeRunning {
			d.remaining--
		}
		d.nextAt = d.nextAt.Add(d.cfg.FrameTime)
		if d.cfg.FrameTime <= 0 && len(d.pending) >= d.framesToBuffer {
			return
		}
	}
}

func (d *MockDevice) Get(node string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	v, ok := d.nodes[node]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	debug.Node("Get", node, v)
	return v, nil
}

func (d *MockDevice) Set(node string, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if _, ok := d.nodes[node]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	if queue := d.failures[node]; len(queue) > 0 {
		d.failures[node] = queue[1:]
		return queue[0]
	}
	if d.readOnly[node] {
		return fmt.Errorf("%w: %s", ErrReadOnly, node)
	}
	if c, ok := d.clamps[node]; ok {
		if f, isNum := toFloat(value); isNum {
			if f < c[0] {
				f = c[0]
			}
			if f > c[1] {
				f = c[1]
			}
			value = f
		}
	}
	debug.Node("Set", node, value)
	d.nodes[node] = value
	return nil
}

func (d *MockDevice) Info() Info {
	return d.cfg.Info
}

func (d *MockDevice) Dispose() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disposed = true
	d.armed = false
	d.pending = nil
	return nil
}

// --- test controls ---

// SetNode writes a node directly, bypassing read-only and clamp rules.
func (d *MockDevice) SetNode(node string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes[node] = value
}

// SetReadOnly makes writes to node fail with ErrReadOnly.
func (d *MockDevice) SetReadOnly(node string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly[node] = true
}

// Clamp limits numeric writes to node to [lo, hi], like a sensor range.
func (d *MockDevice) Clamp(node string, lo, hi float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clamps[node] = [2]float64{lo, hi}
}

// FailNext makes the next n writes to node return err.
func (d *MockDevice) FailNext(node string, err error, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures[node] = append(d.failures[node], err)
	}
}

// FailNextDisarm makes the next n disarms of an armed device return err,
// leaving it armed.
func (d *MockDevice) FailNextDisarm(err error, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.disarms = append(d.disarms, err)
	}
}

// Stall stops (or resumes) frame readout while keeping the device armed.
func (d *MockDevice) Stall(stalled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalled = stalled
}

// SetFrameTime changes the readout time per frame.
func (d *MockDevice) SetFrameTime(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.FrameTime = t
}

// Disconnect simulates the cable being pulled.
func (d *MockDevice) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = true
}

// Armed reports whether the device is armed.
func (d *MockDevice) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Disposed reports whether Dispose was called.
func (d *MockDevice) Disposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// Triggers returns the number of software triggers issued.
func (d *MockDevice) Triggers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggers
}

// MockDriver serves a fixed set of MockDevices.
type MockDriver struct {
	mu      sync.Mutex
	ids     []string
	devices map[string]*MockDevice
	closed  bool
}

// NewMockDriver creates a driver exposing devs, keyed by serial number.
func NewMockDriver(devs ...*MockDevice) *MockDriver {
	m := &MockDriver{devices: make(map[string]*MockDevice)}
	for _, d := range devs {
		id := d.cfg.Info.SerialNumber
		m.ids = append(m.ids, id)
		m.devices[id] = d
	}
	return m
}

func (m *MockDriver) Enumerate(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrDisconnected
	}
	ids := make([]string, len(m.ids))
	copy(ids, m.ids)
	return ids, nil
}

func (m *MockDriver) Open(_ context.Context, id string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrDisconnected
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDevice, id)
	}
	debug.Trace("mock driver: open %s", id)
	return d, nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
