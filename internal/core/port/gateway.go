package port

import (
	"context"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

// RealTimeGateway delivers signaling messages to connected users.
type RealTimeGateway interface {
	// Deliver returns domain.ErrUserOffline when userID has no connection.
	Deliver(ctx context.Context, userID domain.UserID, msg domain.Message) error
}

// SignalingChannel is the local user's persistent connection to the relay.
type SignalingChannel interface {
	Connect(ctx context.Context, userID domain.UserID) error
	Send(ctx context.Context, msg domain.Message) error
	OnMessage(handler func(domain.Message))
	State() domain.ConnectionState
	Close() error
}
