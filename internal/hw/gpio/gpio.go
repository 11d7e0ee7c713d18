package gpio

import (
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	Close() error
}

// MockDriver is a test implementation that simply logs actions.
// Used for development on PC or testing.
type MockDriver struct{}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.Trace("GPIO SetupPin pin=%d mode=%d", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.Trace("GPIO WritePin pin=%d level=%v", pin, level)
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// Strobe drives an output line high for a short pulse on every camera
// trigger. Lab setups use it to fire an illumination LED or to time-stamp
// frames on an external acquisition card.
//
// The line idles LOW; Pulse holds it HIGH for the configured width.
type Strobe struct {
	gpio  Driver
	pin   int
	width time.Duration
}

// NewStrobe configures pin as an output held LOW.
func NewStrobe(g Driver, pin int, width time.Duration) (*Strobe, error) {
	if err := g.SetupPin(pin, Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, Low); err != nil {
		return nil, err
	}
	return &Strobe{gpio: g, pin: pin, width: width}, nil
}

// Pulse emits one strobe pulse. The line is released even if raising it failed.
func (s *Strobe) Pulse() error {
	if err := s.gpio.WritePin(s.pin, High); err != nil {
		_ = s.gpio.WritePin(s.pin, Low)
		return err
	}
	if s.width > 0 {
		time.Sleep(s.width)
	}
	return s.gpio.WritePin(s.pin, Low)
}
