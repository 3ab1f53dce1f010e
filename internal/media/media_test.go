package media

import (
	"context"
	"testing"
	"time"

	"matchcall/internal/calls"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDevices_AcquireVideo(t *testing.T) {
	d := StaticDevices{Microphone: true, Camera: true}
	s, err := d.Acquire(context.Background(), ConstraintsFor(calls.CallTypeVideo))
	require.NoError(t, err)
	assert.Len(t, s.TrackLocals(), 2)
	assert.Equal(t, 2, s.Live())

	s.Stop()
	s.Stop()
	assert.Equal(t, 0, s.Live())
}

func TestStaticDevices_Errors(t *testing.T) {
	_, err := StaticDevices{Microphone: true, Camera: true, Denied: true}.Acquire(context.Background(), ConstraintsFor(calls.CallTypeAudio))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = StaticDevices{Microphone: true}.Acquire(context.Background(), ConstraintsFor(calls.CallTypeVideo))
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = StaticDevices{}.Acquire(context.Background(), ConstraintsFor(calls.CallTypeAudio))
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestTrack_MuteAndStop(t *testing.T) {
	s, err := StaticDevices{Microphone: true}.Acquire(context.Background(), ConstraintsFor(calls.CallTypeAudio))
	require.NoError(t, err)
	tr := s.Tracks()[0]

	s.SetEnabled(KindAudio, false)
	assert.False(t, tr.Enabled())
	// Not bound to a connection yet, so an enabled write is a no-op as well.
	assert.NoError(t, tr.WriteSample(pionmedia.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond}))

	tr.Stop()
	assert.ErrorIs(t, tr.WriteSample(pionmedia.Sample{Data: []byte{0}, Duration: 20 * time.Millisecond}), ErrTrackStopped)
}

func TestStaticDevices_AppliesVideoConstraints(t *testing.T) {
	d := StaticDevices{
		Microphone:   true,
		Cameras:      []FacingMode{FacingUser, FacingEnvironment},
		MaxWidth:     640,
		MaxHeight:    480,
		MaxFrameRate: 24,
	}
	c := Constraints{Video: true, Width: 1280, Height: 360, FrameRate: 15, FacingMode: FacingEnvironment}
	s, err := d.Acquire(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, s.Tracks(), 1)
	assert.Equal(t, VideoSettings{Width: 640, Height: 360, FrameRate: 15, FacingMode: FacingEnvironment}, s.Tracks()[0].Settings())
}

func TestStaticDevices_FacingModeIsAPreference(t *testing.T) {
	d := StaticDevices{Microphone: true, Camera: true}
	c := ConstraintsFor(calls.CallTypeVideo)
	c.FacingMode = FacingEnvironment
	s, err := d.Acquire(context.Background(), c)
	require.NoError(t, err)

	var video VideoSettings
	for _, tr := range s.Tracks() {
		if tr.Kind() == KindVideo {
			video = tr.Settings()
		} else {
			assert.Equal(t, VideoSettings{}, tr.Settings())
		}
	}
	assert.Equal(t, VideoSettings{Width: 1280, Height: 720, FrameRate: 30, FacingMode: FacingUser}, video)
}
