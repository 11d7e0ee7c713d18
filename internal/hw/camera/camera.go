package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract lab camera, regardless of which vendor SDK
// backs it.
type Camera interface {
	Type() Type
	Close() error

	// StartCapture arms continuous acquisition and returns immediately.
	// Frames are collected with GetImage until StopCapture.
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
	// GetImage blocks until the next frame of the running session.
	GetImage(ctx context.Context) (sdk.Frame, error)
	// TakeOneImage arms, captures a single frame and disarms.
	TakeOneImage(ctx context.Context) (sdk.Frame, error)

	SetProperty(p Property, value interface{}) (interface{}, error)
	GetProperty(p Property) (interface{}, error)
	Metadata() (Metadata, error)
}

// Type selects the hardware family backing a camera.
type Type string

const (
	TypeStreaming Type = "streaming" // native continuous acquisition (GenICam style)
	TypePaced     Type = "paced"     // no native framerate control, software pacing
	TypeSimulated Type = "simulated" // no hardware
)

// ParseType maps a configuration name to a Type. Vendor names are accepted
// as aliases, matched as substrings like "flir_blackfly".
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "":
		return "", fmt.Errorf("camera type is empty")
	case strings.Contains(n, "stream"), strings.Contains(n, "flir"), strings.Contains(n, "genicam"):
		return TypeStreaming, nil
	case strings.Contains(n, "pace"), strings.Contains(n, "poll"), strings.Contains(n, "thor"), strings.Contains(n, "tsi"):
		return TypePaced, nil
	case strings.Contains(n, "sim"), strings.Contains(n, "dummy"):
		return TypeSimulated, nil
	}
	return "", fmt.Errorf("no valid camera found with name %q", name)
}

// Metadata keys every camera reports. Adapters may add more.
const (
	MetaModel      = "DeviceModelName"
	MetaVendor     = "DeviceVendorName"
	MetaVersion    = "DeviceVersion"
	MetaSerial     = "DeviceSerialNumber"
	MetaName       = "DeviceName"
	MetaSensorType = "DeviceSensorType"
)

// Metadata identifies the hardware actually used, for experiment logs.
type Metadata map[string]string

// Options tunes the gateway and the capture loops. Zero fields take defaults.
type Options struct {
	Device string // device id; empty picks the first enumerated device

	Tolerance        float64       // relative tolerance of the write check (0.05)
	StarvationFactor float64       // paced GetImage gives up after this many periods (3)
	StarvationPoll   time.Duration // paced GetImage queue poll interval (10ms)
	MinPacedFPS      float64       // warn above this paced framerate (1)
	WriteRetries     int           // retries of a busy node write (5, negative disables)
	WriteBackoff     time.Duration // pause between busy retries (10ms)

	// Strobe, when set, is pulsed right before every software trigger.
	Strobe Trigger

	Simulated SimulatedOptions
}

// Trigger is an auxiliary output fired with each exposure.
type Trigger interface {
	Pulse() error
}

// DefaultOptions returns the tuning used when nothing is configured.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = 0.05
	}
	if o.StarvationFactor <= 0 {
		o.StarvationFactor = 3
	}
	if o.StarvationPoll <= 0 {
		o.StarvationPoll = 10 * time.Millisecond
	}
	if o.MinPacedFPS <= 0 {
		o.MinPacedFPS = 1
	}
	if o.WriteRetries < 0 {
		o.WriteRetries = 0
	} else if o.WriteRetries == 0 {
		o.WriteRetries = 5
	}
	if o.WriteBackoff <= 0 {
		o.WriteBackoff = 10 * time.Millisecond
	}
	return o
}

// warnLog collects best-effort failures so callers can inspect them after
// the fact; each entry is also logged.
type warnLog struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnLog) add(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	debug.Warn("%s", msg)
	w.mu.Lock()
	w.msgs = append(w.msgs, msg)
	w.mu.Unlock()
}

func (w *warnLog) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.msgs))
	copy(out, w.msgs)
	return out
}
