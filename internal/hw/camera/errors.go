package camera

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedProperty is returned for keys outside the universal
	// vocabulary and for properties the camera does not implement.
	ErrUnsupportedProperty = errors.New("unsupported property")
	// ErrVerificationFailed is matched by *VerificationError.
	ErrVerificationFailed = errors.New("property not set correctly")
	// ErrInvalidValue is returned when a value has the wrong type or range.
	ErrInvalidValue = errors.New("invalid property value")
	// ErrConnection means the camera could not be reached or went away.
	ErrConnection = errors.New("camera connection error")
	// ErrCaptureStarvation means the paced capture stopped producing frames.
	ErrCaptureStarvation = errors.New("no images are being generated")
	// ErrPacingViolation is matched by *PacingError.
	ErrPacingViolation = errors.New("framerate is set too fast, data collection cannot keep up")
	// ErrInvalidState is the parent of the capture state errors.
	ErrInvalidState = errors.New("invalid capture state")
	// ErrClosed is returned by every call on a closed camera.
	ErrClosed = errors.New("camera is closed")

	ErrAlreadyCapturing = fmt.Errorf("%w: already capturing", ErrInvalidState)
	ErrNotCapturing     = fmt.Errorf("%w: not capturing", ErrInvalidState)
)

// VerificationError reports a write the hardware accepted but did not apply.
type VerificationError struct {
	Property Property
	Intended interface{}
	Observed interface{}
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("property not set correctly: tried setting %s to %v, but upon inspection %s was set to %v",
		e.Property, e.Intended, e.Property, e.Observed)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

// PacingError reports one pacer iteration that took longer than the period.
type PacingError struct {
	Loop   time.Duration
	Period time.Duration
}

func (e *PacingError) Error() string {
	return fmt.Sprintf("%v: one loop took %v while the desired period is %v", ErrPacingViolation, e.Loop, e.Period)
}

func (e *PacingError) Unwrap() error {
	return ErrPacingViolation
}
