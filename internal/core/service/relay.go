package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/rs/zerolog/log"
)

// RelayService forwards signaling messages between connected users.
type RelayService struct {
	gateway port.RealTimeGateway
}

func NewRelayService(gateway port.RealTimeGateway) *RelayService {
	return &RelayService{gateway: gateway}
}

// Relay decodes one frame sent by from and delivers it to its target,
// stamped with the sender. A call offered to an offline user is answered
// with call-rejected on the caller's behalf.
func (s *RelayService) Relay(ctx context.Context, from domain.UserID, data []byte) error {
	msg, err := domain.Decode(data)
	if err != nil {
		return err
	}
	h := msg.Head()
	if h.Target == from {
		return fmt.Errorf("%w: cannot signal yourself", domain.ErrBadRequest)
	}
	domain.Stamp(msg, from)

	l := log.With().
		Str("action", string(msg.Action())).
		Str("call_id", h.CallID.String()).
		Str("from", from.String()).
		Str("to", h.Target.String()).
		Logger()

	err = s.gateway.Deliver(ctx, h.Target, msg)
	if !errors.Is(err, domain.ErrUserOffline) {
		if err == nil {
			l.Debug().Msg("Relayed")
		}
		return err
	}

	switch msg.(type) {
	case *domain.IncomingCall, *domain.Offer:
		l.Info().Msg("Callee offline, rejecting")
		bounce := &domain.CallRejected{
			Header: domain.Header{CallID: h.CallID, Target: from, From: h.Target},
			Reason: domain.ReasonOffline,
		}
		if err := s.gateway.Deliver(ctx, from, bounce); err != nil && !errors.Is(err, domain.ErrUserOffline) {
			return err
		}
	default:
		l.Debug().Msg("Target offline, dropping")
	}
	return nil
}
