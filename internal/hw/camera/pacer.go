package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// pacerBufferFrames is the driver-side queue while pacing. One frame per
// trigger is expected, the slack absorbs a late readout.
const pacerBufferFrames = 4

// pacer emulates a framerate the hardware cannot hold by itself: one
// goroutine triggers a single exposure per period and queues the frames,
// the caller drains the queue with next.
//
// Only the goroutine touches the device while the pacer runs. The mutex
// guards queue and err and is never held across device I/O or sleeps.
type pacer struct {
	stream    streamer
	period    time.Duration
	ceiling   time.Duration // next gives up after this long without a frame
	pollEvery time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	queue    []sdk.Frame
	err      error
	reported bool
}

// startPacer launches the capture goroutine and returns immediately.
func startPacer(s streamer, fps float64, opts Options) *pacer {
	period := time.Duration(float64(time.Second) / fps)
	ctx, cancel := context.WithCancel(context.Background())
	p := &pacer{
		stream:    s,
		period:    period,
		ceiling:   time.Duration(float64(period) * opts.StarvationFactor),
		pollEvery: opts.StarvationPoll,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	debug.Verbose("Pacer: starting at %.3f fps (period %v, starvation after %v)", fps, p.period, p.ceiling)
	go p.run(ctx)
	return p
}

func (p *pacer) run(ctx context.Context) {
	defer close(p.done)

	if err := p.stream.dev.Arm(1, pacerBufferFrames); err != nil {
		p.fail(deviceError("arm", err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()

		if err := p.stream.trigger(); err != nil {
			p.fail(err)
			return
		}
		f, err := p.stream.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.fail(err)
			return
		}
		p.push(f)

		loop := time.Since(start)
		wait := p.period - loop
		if wait < 0 {
			p.fail(&PacingError{Loop: loop, Period: p.period})
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *pacer) push(f sdk.Frame) {
	p.mu.Lock()
	p.queue = append(p.queue, f)
	p.mu.Unlock()
}

func (p *pacer) fail(err error) {
	debug.Error(fmt.Errorf("pacer stopped: %w", err))
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// pop returns the oldest frame, or the error that stopped the loop.
func (p *pacer) pop() (sdk.Frame, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		p.reported = true
		return sdk.Frame{}, false, p.err
	}
	if len(p.queue) == 0 {
		return sdk.Frame{}, false, nil
	}
	f := p.queue[0]
	p.queue[0] = sdk.Frame{}
	p.queue = p.queue[1:]
	return f, true, nil
}

// next waits for the oldest queued frame. An empty queue is normal while
// the next exposure is running; empty for longer than the ceiling means
// the producer is gone.
func (p *pacer) next(ctx context.Context) (sdk.Frame, error) {
	deadline := time.Now().Add(p.ceiling)
	for {
		f, ok, err := p.pop()
		if err != nil {
			return sdk.Frame{}, err
		}
		if ok {
			return f, nil
		}
		if time.Now().After(deadline) {
			return sdk.Frame{}, fmt.Errorf("%w for %v (period %v): the camera probably disconnected or crashed, or memory ran out",
				ErrCaptureStarvation, p.ceiling, p.period)
		}
		timer := time.NewTimer(p.pollEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sdk.Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// stop cancels the loop and waits for the goroutine to exit. It returns
// the error that stopped the loop if next never reported it.
func (p *pacer) stop() error {
	p.cancel()
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	if p.err != nil && !p.reported {
		p.reported = true
		return p.err
	}
	return nil
}
