package service

import (
	"context"
	"fmt"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/rs/zerolog"
)

// negotiator holds the candidate bookkeeping of one call attempt. It is
// owned by the controller loop.
type negotiator struct {
	callID    domain.CallID
	peer      domain.UserID
	transport port.Transport
	send      func(domain.Message)
	log       zerolog.Logger

	remoteSet bool
	pending   []domain.Candidate

	localSent bool
	outbound  []domain.Candidate
}

func newNegotiator(peer domain.UserID, send func(domain.Message), l zerolog.Logger) *negotiator {
	return &negotiator{peer: peer, send: send, log: l}
}

// remoteCandidate applies c when the remote description is in place and
// queues it otherwise.
func (n *negotiator) remoteCandidate(c domain.Candidate) {
	if !n.remoteSet || n.transport == nil {
		n.pending = append(n.pending, c)
		n.log.Debug().Int("queued", len(n.pending)).Msg("Queued remote candidate")
		return
	}
	n.apply(c)
}

// remoteDescriptionSet flushes queued candidates in arrival order.
func (n *negotiator) remoteDescriptionSet() int {
	n.remoteSet = true
	flushed := len(n.pending)
	for _, c := range n.pending {
		n.apply(c)
	}
	n.pending = nil
	if flushed > 0 {
		n.log.Debug().Int("count", flushed).Msg("Flushed queued candidates")
	}
	return flushed
}

func (n *negotiator) apply(c domain.Candidate) {
	if err := n.transport.AddICECandidate(c); err != nil {
		n.log.Warn().Err(err).Msg("Failed to add remote candidate")
	}
}

// localCandidate forwards c to the peer once our description went out.
func (n *negotiator) localCandidate(c domain.Candidate) {
	if !n.localSent {
		n.outbound = append(n.outbound, c)
		return
	}
	n.send(&domain.ICECandidate{
		Header:    domain.Header{CallID: n.callID, Target: n.peer},
		Candidate: c,
	})
}

func (n *negotiator) descriptionSent() {
	n.localSent = true
	for _, c := range n.outbound {
		n.send(&domain.ICECandidate{
			Header:    domain.Header{CallID: n.callID, Target: n.peer},
			Candidate: c,
		})
	}
	n.outbound = nil
}

// The helpers below run off the loop and only touch the transport.

func createOffer(ctx context.Context, t port.Transport) (domain.SessionDescription, error) {
	sd, err := t.CreateOffer(ctx)
	if err != nil {
		return sd, fmt.Errorf("%w: create offer: %v", domain.ErrNegotiationFailure, err)
	}
	if err := t.SetLocalDescription(ctx, sd); err != nil {
		return sd, fmt.Errorf("%w: set local offer: %v", domain.ErrNegotiationFailure, err)
	}
	return sd, nil
}

func createAnswer(ctx context.Context, t port.Transport) (domain.SessionDescription, error) {
	sd, err := t.CreateAnswer(ctx)
	if err != nil {
		return sd, fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailure, err)
	}
	if err := t.SetLocalDescription(ctx, sd); err != nil {
		return sd, fmt.Errorf("%w: set local answer: %v", domain.ErrNegotiationFailure, err)
	}
	return sd, nil
}

func setRemote(ctx context.Context, t port.Transport, sd domain.SessionDescription) error {
	if err := t.SetRemoteDescription(ctx, sd); err != nil {
		return fmt.Errorf("%w: set remote %s: %v", domain.ErrNegotiationFailure, sd.Type, err)
	}
	return nil
}
