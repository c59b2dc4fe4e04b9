//go:build linux

// Package capture opens the local camera and microphone.
package capture

import (
	"context"
	"fmt"

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/media/pion"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Devices implements port.MediaDevices with V4L2 and malgo drivers, and
// pion.CodecRegistrar with the encoders it captures with.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func NewDevices() (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	for _, d := range mediadevices.EnumerateDevices() {
		log.Debug().Str("kind", fmt.Sprint(d.Kind)).Str("label", d.Label).Msg("Media device")
	}

	return &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.selector.Populate(m)
	return nil
}

// GetUserMedia opens the microphone, and the camera for video calls. A
// camera that cannot be opened degrades a video call to audio only; a
// missing microphone is an error.
func (d *Devices) GetUserMedia(ctx context.Context, video bool) (port.LocalMedia, error) {
	attempts := []bool{false}
	if video {
		attempts = []bool{true, false}
	}

	var lastErr error
	for _, withVideo := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		constraints := mediadevices.MediaStreamConstraints{
			Codec: d.selector,
			Audio: func(*mediadevices.MediaTrackConstraints) {},
		}
		if withVideo {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Warn().Err(err).Bool("video", withVideo).Msg("GetUserMedia failed")
			lastErr = err
			continue
		}

		var tracks []*pion.LocalTrack
		for _, tr := range stream.GetTracks() {
			tr.OnEnded(func(err error) {
				if err != nil {
					log.Warn().Err(err).Str("track_id", tr.ID()).Msg("Local track ended")
				}
			})
			kind := domain.TrackAudio
			if tr.Kind() == webrtc.RTPCodecTypeVideo {
				kind = domain.TrackVideo
			}
			tracks = append(tracks, pion.NewLocalTrack(tr, kind, tr.Close))
		}
		if video && !withVideo {
			log.Warn().Msg("Camera unavailable, continuing with audio only")
		}
		return pion.NewLocalMedia(tracks...), nil
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrMediaAccess, lastErr)
}
