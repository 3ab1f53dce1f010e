package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// StaticDevices is a headless capture backend: it hands out sample-driven pion
// tracks for the devices it claims to have. Samples are written by the caller.
type StaticDevices struct {
	Microphone bool
	Camera     bool

	// Cameras lists the facing of each camera. Empty with Camera set means a
	// single user-facing camera.
	Cameras []FacingMode

	// Capture limits; zero means 1280x720 at 30 fps.
	MaxWidth     int
	MaxHeight    int
	MaxFrameRate float64

	// Denied makes every Acquire fail as if the user refused the permission prompt.
	Denied bool
}

func (d StaticDevices) cameras() []FacingMode {
	if len(d.Cameras) > 0 {
		return d.Cameras
	}
	if d.Camera {
		return []FacingMode{FacingUser}
	}
	return nil
}

// videoSettings resolves c against the device. Facing mode and sizes are
// preferences: the requested facing is used when such a camera exists, any
// camera otherwise, and sizes are capped at what the device delivers.
func (d StaticDevices) videoSettings(c Constraints) (VideoSettings, bool) {
	cams := d.cameras()
	if len(cams) == 0 {
		return VideoSettings{}, false
	}
	facing := cams[0]
	for _, f := range cams {
		if c.FacingMode != "" && f == c.FacingMode {
			facing = f
			break
		}
	}
	maxW, maxH, maxFPS := d.MaxWidth, d.MaxHeight, d.MaxFrameRate
	if maxW <= 0 || maxH <= 0 {
		maxW, maxH = 1280, 720
	}
	if maxFPS <= 0 {
		maxFPS = 30
	}
	return VideoSettings{
		Width:      capInt(c.Width, maxW),
		Height:     capInt(c.Height, maxH),
		FrameRate:  capFloat(c.FrameRate, maxFPS),
		FacingMode: facing,
	}, true
}

func capInt(want, limit int) int {
	if want <= 0 || want > limit {
		return limit
	}
	return want
}

func capFloat(want, limit float64) float64 {
	if want <= 0 || want > limit {
		return limit
	}
	return want
}

func (d StaticDevices) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, errors.New("media: no track requested")
	}
	if d.Denied {
		return nil, ErrPermissionDenied
	}

	s := &Stream{ID: uuid.NewString()}
	if c.Audio {
		if !d.Microphone {
			return nil, fmt.Errorf("%w: microphone", ErrDeviceNotFound)
		}
		t, err := newTrack(KindAudio, s.ID, VideoSettings{})
		if err != nil {
			return nil, err
		}
		s.add(t)
	}
	if c.Video {
		settings, ok := d.videoSettings(c)
		if !ok {
			s.Stop()
			return nil, fmt.Errorf("%w: camera", ErrDeviceNotFound)
		}
		t, err := newTrack(KindVideo, s.ID, settings)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.add(t)
	}
	return s, nil
}
