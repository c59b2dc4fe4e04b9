package port

import (
	"context"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

// Transport is the narrow view of the peer-to-peer media stack the call
// core drives. Callbacks may fire on any goroutine.
type Transport interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error
	SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error
	AddICECandidate(c domain.Candidate) error
	OnICECandidate(fn func(domain.Candidate))
	OnConnectionStateChange(fn func(domain.TransportState))
	AttachLocalMedia(m LocalMedia) error
	OnRemoteTrack(fn func(domain.TrackInfo))
	Close() error
}

type TransportFactory interface {
	NewTransport(ctx context.Context, callType domain.CallType) (Transport, error)
}
