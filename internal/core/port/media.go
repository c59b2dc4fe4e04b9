package port

import (
	"context"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

type MediaDevices interface {
	// GetUserMedia captures audio, and video when asked. Implementations
	// return an error wrapping domain.ErrMediaAccess when capture is not
	// possible.
	GetUserMedia(ctx context.Context, video bool) (LocalMedia, error)
}

type LocalMedia interface {
	Tracks() []MediaTrack
	Close() error
}

type MediaTrack interface {
	ID() string
	Kind() domain.TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
}
