package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/rs/zerolog/log"
)

var errMediaReleased = errors.New("media session already released")

// MediaSession owns the local capture tracks of one call attempt.
// Acquire may run off the controller loop, so state is guarded.
type MediaSession struct {
	devices port.MediaDevices

	mu       sync.Mutex
	local    port.LocalMedia
	released bool
	muted    bool
	videoOff bool
}

func NewMediaSession(devices port.MediaDevices) *MediaSession {
	return &MediaSession{devices: devices}
}

// Acquire captures audio, plus video when asked. A capture that completes
// after Release is closed immediately and reported as an error.
func (m *MediaSession) Acquire(ctx context.Context, video bool) (port.LocalMedia, error) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil, errMediaReleased
	}
	if m.local != nil {
		local := m.local
		m.mu.Unlock()
		return local, nil
	}
	m.mu.Unlock()

	local, err := m.devices.GetUserMedia(ctx, video)
	if err != nil {
		if !errors.Is(err, domain.ErrMediaAccess) {
			err = fmt.Errorf("%w: %v", domain.ErrMediaAccess, err)
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		if cerr := local.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to stop late media")
		}
		return nil, errMediaReleased
	}
	m.local = local
	m.applyLocked()
	return local, nil
}

func (m *MediaSession) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.applyLocked()
}

func (m *MediaSession) SetVideoEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoOff = !enabled
	m.applyLocked()
}

func (m *MediaSession) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *MediaSession) VideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.videoOff
}

func (m *MediaSession) applyLocked() {
	if m.local == nil {
		return
	}
	for _, t := range m.local.Tracks() {
		switch t.Kind() {
		case domain.TrackAudio:
			t.SetEnabled(!m.muted)
		case domain.TrackVideo:
			t.SetEnabled(!m.videoOff)
		}
	}
}

// Release stops every acquired track. Only the first call does anything;
// it reports whether this call was the one that released.
func (m *MediaSession) Release() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return false
	}
	m.released = true
	if m.local != nil {
		if err := m.local.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop local media")
		}
		m.local = nil
	}
	return true
}
