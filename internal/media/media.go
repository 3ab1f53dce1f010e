// Package media acquires local audio/video tracks for a call.
package media

import (
	"context"
	"errors"

	"matchcall/internal/calls"
)

var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
	ErrTrackStopped     = errors.New("media: track stopped")
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Constraints describe the requested local stream.
type Constraints struct {
	Audio bool
	Video bool

	Width      int
	Height     int
	FrameRate  float64
	FacingMode FacingMode
}

// ConstraintsFor returns the default constraints for a call type.
func ConstraintsFor(t calls.CallType) Constraints {
	if t == calls.CallTypeVideo {
		return Constraints{Audio: true, Video: true, Width: 1280, Height: 720, FrameRate: 30, FacingMode: FacingUser}
	}
	return Constraints{Audio: true}
}

// Devices is the local capture API. Acquire either returns a stream holding every
// requested track or an error wrapping ErrPermissionDenied / ErrDeviceNotFound;
// partially opened tracks are stopped before returning.
type Devices interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}
