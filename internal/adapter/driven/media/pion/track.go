package pion

import (
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LocalTrack is a captured track that can be attached to a Transport.
// Disabling it detaches the source from the sender, so the peer receives
// nothing while the track stays open.
type LocalTrack struct {
	local webrtc.TrackLocal
	kind  domain.TrackKind
	stop  func() error

	mu      sync.Mutex
	enabled bool
	sender  *webrtc.RTPSender
}

func NewLocalTrack(local webrtc.TrackLocal, kind domain.TrackKind, stop func() error) *LocalTrack {
	return &LocalTrack{local: local, kind: kind, stop: stop, enabled: true}
}

func (t *LocalTrack) ID() string             { return t.local.ID() }
func (t *LocalTrack) Kind() domain.TrackKind { return t.kind }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == enabled {
		return
	}
	t.enabled = enabled
	t.apply()
}

func (t *LocalTrack) bind(sender *webrtc.RTPSender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sender = sender
	if !t.enabled {
		t.apply()
	}
}

// apply must be called with mu held.
func (t *LocalTrack) apply() {
	if t.sender == nil {
		return
	}
	var src webrtc.TrackLocal
	if t.enabled {
		src = t.local
	}
	if err := t.sender.ReplaceTrack(src); err != nil {
		log.Warn().Err(err).Str("track_id", t.local.ID()).Msg("Failed to toggle track")
	}
}

func (t *LocalTrack) close() error {
	if t.stop == nil {
		return nil
	}
	return t.stop()
}

// LocalMedia groups the tracks of one capture.
type LocalMedia struct {
	tracks []*LocalTrack
	once   sync.Once
}

func NewLocalMedia(tracks ...*LocalTrack) *LocalMedia {
	return &LocalMedia{tracks: tracks}
}

func (m *LocalMedia) Tracks() []port.MediaTrack {
	out := make([]port.MediaTrack, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}

func (m *LocalMedia) Close() error {
	var first error
	m.once.Do(func() {
		for _, t := range m.tracks {
			if err := t.close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
