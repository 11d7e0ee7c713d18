package camera

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

const (
	streamBufferFrames  = 100 // driver queue while free-running
	oneShotBufferFrames = 2   // driver queue for TakeOneImage
)

// openDevice enumerates drv and opens id, or the first device when id is empty.
func openDevice(ctx context.Context, drv sdk.Driver, id string) (sdk.Device, error) {
	ids, err := drv.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %w", ErrConnection, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConnection, sdk.ErrNoDevice)
	}
	if id == "" {
		id = ids[0]
		if len(ids) > 1 {
			debug.Info("%d cameras attached, using the first one (%s)", len(ids), id)
		}
	}
	dev, err := drv.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, id, err)
	}
	return dev, nil
}

// nodeError maps SDK errors on a node to the camera error taxonomy.
func nodeError(op, node string, err error) error {
	switch {
	case errors.Is(err, sdk.ErrUnknownNode), errors.Is(err, sdk.ErrReadOnly):
		return fmt.Errorf("%w: %s %s: %w", ErrUnsupportedProperty, op, node, err)
	case errors.Is(err, sdk.ErrDisconnected):
		return fmt.Errorf("%w: %s %s: %w", ErrConnection, op, node, err)
	}
	return fmt.Errorf("%s %s: %w", op, node, err)
}

// deviceError wraps a failed device operation, flagging a lost device as ErrConnection.
func deviceError(op string, err error) error {
	if errors.Is(err, sdk.ErrDisconnected) {
		return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// writeNode sets a node, retrying a bounded number of times while the
// device reports itself busy.
func writeNode(dev sdk.Device, node string, value interface{}, opts Options) error {
	for attempt := 0; ; attempt++ {
		err := dev.Set(node, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sdk.ErrBusy) || attempt >= opts.WriteRetries {
			return nodeError("write", node, err)
		}
		debug.Verbose("Node %s busy, retrying in %v (%d/%d)", node, opts.WriteBackoff, attempt+1, opts.WriteRetries)
		time.Sleep(opts.WriteBackoff)
	}
}

func readNode(dev sdk.Device, node string) (interface{}, error) {
	v, err := dev.Get(node)
	if err != nil {
		return nil, nodeError("read", node, err)
	}
	return v, nil
}

// streamer drives the arm/trigger/poll protocol shared by the hardware adapters.
type streamer struct {
	dev    sdk.Device
	strobe Trigger
	probe  string // node read to check the device is still there
	warn   *warnLog
}

// alive reads the probe node so a silently disconnected camera fails
// before anything gets armed.
func (s streamer) alive() error {
	if s.probe == "" {
		return nil
	}
	if _, err := s.dev.Get(s.probe); err != nil {
		if errors.Is(err, sdk.ErrDisconnected) {
			return fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return fmt.Errorf("%w: liveness probe %s: %w", ErrConnection, s.probe, err)
	}
	return nil
}

func (s streamer) trigger() error {
	if s.strobe != nil {
		if err := s.strobe.Pulse(); err != nil {
			s.warn.add("strobe pulse failed: %v", err)
		}
	}
	if err := s.dev.IssueSoftwareTrigger(); err != nil {
		return deviceError("software trigger", err)
	}
	return nil
}

// start arms for unlimited frames and lets the hardware free-run.
func (s streamer) start() error {
	if err := s.alive(); err != nil {
		return err
	}
	if err := s.dev.Arm(0, streamBufferFrames); err != nil {
		return deviceError("arm", err)
	}
	debug.Verbose("Camera: armed for continuous acquisition")
	if err := s.trigger(); err != nil {
		_ = s.dev.Disarm()
		return err
	}
	return nil
}

// stop disarms. A device that is already disarmed is not an error.
func (s streamer) stop() error {
	err := s.dev.Disarm()
	if err == nil {
		debug.Verbose("Camera: disarmed")
		return nil
	}
	if errors.Is(err, sdk.ErrNotArmed) {
		return nil
	}
	return deviceError("disarm", err)
}

// poll spins on PollFrame until a frame is ready. The SDKs offer no
// blocking wait, so this is a busy loop that yields between polls.
func (s streamer) poll(ctx context.Context) (sdk.Frame, error) {
	for {
		f, ok, err := s.dev.PollFrame()
		if err != nil {
			return sdk.Frame{}, deviceError("poll frame", err)
		}
		if ok {
			debug.Frame("Camera", f.Index)
			return f.Clone(), nil
		}
		if err := ctx.Err(); err != nil {
			return sdk.Frame{}, err
		}
		runtime.Gosched()
	}
}

// takeOne arms for a couple of frames, triggers once and returns the first.
func (s streamer) takeOne(ctx context.Context) (sdk.Frame, error) {
	if err := s.alive(); err != nil {
		return sdk.Frame{}, err
	}
	if err := s.dev.Arm(0, oneShotBufferFrames); err != nil {
		return sdk.Frame{}, deviceError("arm", err)
	}
	var f sdk.Frame
	err := s.trigger()
	if err == nil {
		f, err = s.poll(ctx)
	}
	if derr := s.stop(); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return sdk.Frame{}, err
	}
	return f, nil
}
