//go:build !linux

// Package capture opens the local camera and microphone.
package capture

import (
	"context"
	"fmt"
	"runtime"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// Devices has no capture drivers on this platform.
type Devices struct{}

func NewDevices() (*Devices, error) {
	return &Devices{}, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *Devices) GetUserMedia(ctx context.Context, video bool) (port.LocalMedia, error) {
	return nil, fmt.Errorf("%w: no capture drivers for %s", domain.ErrMediaAccess, runtime.GOOS)
}
