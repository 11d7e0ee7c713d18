package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// variant is what each hardware family implements below the gateway.
// Only Universal calls it, from a single goroutine.
type variant interface {
	connect(ctx context.Context) (PropertyTable, error)
	getDeep(p Property, acc Accessor) (interface{}, error)
	setDeep(p Property, acc Accessor, value interface{}) error
	startCapture(ctx context.Context) error
	stopCapture(ctx context.Context) error
	// acquiring reports whether a session is open on the device, also
	// after a failed stopCapture.
	acquiring() bool
	nextImage(ctx context.Context) (sdk.Frame, error)
	takeOneImage(ctx context.Context) (sdk.Frame, error)
	metadata() (Metadata, error)
	close() error
}

// Session identifies one StartCapture/StopCapture cycle in the logs.
type Session struct {
	ID      uuid.UUID
	Started time.Time
}

// Universal implements Camera on top of a variant. It validates property
// keys, verifies every write by reading it back, and tracks the capture
// session. It holds no property values itself: the adapter is the source
// of truth.
type Universal struct {
	typ     Type
	v       variant
	opts    Options
	table   PropertyTable
	warn    *warnLog
	session *Session
	closed  bool
}

var _ Camera = (*Universal)(nil)

func (c *Universal) Type() Type { return c.typ }

// Supported lists the properties this camera implements.
func (c *Universal) Supported() []Property { return c.table.Supported() }

// Warnings returns the best-effort failures recorded so far.
func (c *Universal) Warnings() []string { return c.warn.list() }

// Session returns the running capture session, or nil when idle.
func (c *Universal) Session() *Session {
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// GetProperty returns the value of p as the adapter reports it.
func (c *Universal) GetProperty(p Property) (interface{}, error) {
	if c.closed {
		return nil, ErrClosed
	}
	acc, err := c.table.Lookup(p)
	if err != nil {
		return nil, err
	}
	v, err := c.v.getDeep(p, acc)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	debug.Trace("get %s = %v", p, v)
	return v, nil
}

// SetProperty writes value and returns what the camera reports afterwards.
// A read-back that is not within the tolerance of value fails with a
// *VerificationError, except for Auto whose outcome is up to the camera.
func (c *Universal) SetProperty(p Property, value interface{}) (interface{}, error) {
	if c.closed {
		return nil, ErrClosed
	}
	acc, err := c.table.Lookup(p)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s cannot be set to nil", ErrInvalidValue, p)
	}
	// Surface a broken property before touching anything.
	if _, err := c.v.getDeep(p, acc); err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	if err := c.v.setDeep(p, acc, value); err != nil {
		return nil, fmt.Errorf("set %s: %w", p, err)
	}
	observed, err := c.v.getDeep(p, acc)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	debug.Property(string(p), value, observed)
	if !isAutoSentinel(value) && !withinFraction(value, observed, c.opts.Tolerance) {
		return observed, &VerificationError{Property: p, Intended: value, Observed: observed}
	}
	return observed, nil
}

// StartCapture arms continuous acquisition. A second start without a stop
// fails with ErrAlreadyCapturing.
func (c *Universal) StartCapture(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.session != nil {
		return ErrAlreadyCapturing
	}
	if err := c.v.startCapture(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	c.session = &Session{ID: uuid.New(), Started: time.Now()}
	debug.Info("Capture %s started", c.session.ID)
	return nil
}

// StopCapture ends the session. The hardware adapters treat a stop while
// idle as a no-op, the simulated one reports ErrNotCapturing. When the
// device could not be stopped the session stays open so the stop can be
// retried.
func (c *Universal) StopCapture(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	s := c.session
	err := c.v.stopCapture(ctx)
	if c.v.acquiring() {
		if err == nil {
			err = fmt.Errorf("%w: device still acquiring", ErrInvalidState)
		}
		return fmt.Errorf("stop capture: %w", err)
	}
	c.session = nil
	if s != nil {
		debug.Info("Capture %s stopped after %v", s.ID, time.Since(s.Started).Round(time.Millisecond))
	}
	if err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

// GetImage blocks until the next frame of the running session.
func (c *Universal) GetImage(ctx context.Context) (sdk.Frame, error) {
	if c.closed {
		return sdk.Frame{}, ErrClosed
	}
	if c.session == nil {
		return sdk.Frame{}, ErrNotCapturing
	}
	f, err := c.v.nextImage(ctx)
	if err != nil {
		return sdk.Frame{}, fmt.Errorf("get image: %w", err)
	}
	return f, nil
}

// TakeOneImage captures a single frame outside of any session.
func (c *Universal) TakeOneImage(ctx context.Context) (sdk.Frame, error) {
	if c.closed {
		return sdk.Frame{}, ErrClosed
	}
	if c.session != nil {
		return sdk.Frame{}, fmt.Errorf("%w: take one image during capture %s", ErrInvalidState, c.session.ID)
	}
	f, err := c.v.takeOneImage(ctx)
	if err != nil {
		return sdk.Frame{}, fmt.Errorf("take one image: %w", err)
	}
	return f, nil
}

func (c *Universal) Metadata() (Metadata, error) {
	if c.closed {
		return nil, ErrClosed
	}
	return c.v.metadata()
}

// Close stops a running session and releases the device. Failures are
// logged, the camera is unusable afterwards either way.
func (c *Universal) Close() error {
	if c.closed {
		return nil
	}
	if c.session != nil {
		if err := c.StopCapture(context.Background()); err != nil {
			debug.Error(fmt.Errorf("close: %w", err))
		}
	}
	c.session = nil
	c.closed = true
	if err := c.v.close(); err != nil {
		debug.Error(fmt.Errorf("close: %w", err))
	}
	debug.Info("Camera closed")
	return nil
}

// enforceDefaults applies the settings every experiment expects: RGB
// instead of raw Bayer data, and no gamma correction. Both are best effort.
func (c *Universal) enforceDefaults() {
	if pf, err := c.GetProperty(PixelFormat); err != nil {
		if !errors.Is(err, ErrUnsupportedProperty) {
			c.warn.add("could not read the pixel format: %v", err)
		}
	} else if strings.Contains(strings.ToLower(fmt.Sprint(pf)), "ayer") {
		debug.Info("Camera delivers %v, switching to %s", pf, RGBPixelFormat)
		if _, err := c.SetProperty(PixelFormat, RGBPixelFormat); err != nil {
			c.warn.add("pixel format %v could not be changed to %s, images will be left as-is: %v", pf, RGBPixelFormat, err)
		}
	}

	on, err := c.GetProperty(GammaEnable)
	switch {
	case errors.Is(err, ErrUnsupportedProperty):
	case err != nil:
		c.warn.add("could not read gamma correction: %v", err)
	case on == true:
		if _, err := c.SetProperty(GammaEnable, false); err != nil && !errors.Is(err, ErrUnsupportedProperty) {
			c.warn.add("could not disable gamma correction: %v", err)
		}
	}
}
