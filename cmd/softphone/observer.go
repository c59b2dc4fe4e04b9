package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// printer reports call progress on the terminal.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) CallChanged(s domain.CallSession) {
	switch s.State {
	case domain.StateRinging:
		name := s.CallerName
		if name == "" {
			name = s.CallerID.String()
		}
		p.printf("incoming %s call from %s (answer/reject)", s.Type, name)
	case domain.StateCalling:
		p.printf("calling %s...", s.Peer())
	case domain.StateActive:
		p.printf("connected with %s", s.Peer())
	case domain.StateEnded:
		if d, ok := s.Duration(); ok {
			p.printf("call %s: %s after %s", s.ID, s.Outcome, d.Round(time.Second))
			return
		}
		p.printf("call %s: %s", s.ID, s.Outcome)
	}
}

func (p *printer) DurationTick(id domain.CallID, seconds int) {
	if seconds%60 == 0 {
		p.printf("%s: %d:00", id, seconds/60)
	}
}

func (p *printer) CallError(err error) {
	if errors.Is(err, domain.ErrMediaAccess) {
		p.printf("cannot access camera or microphone: %v", err)
		return
	}
	log.Error().Err(err).Msg("Call error")
}

func (p *printer) RemoteTrack(id domain.CallID, t domain.TrackInfo) {
	p.printf("receiving %s from peer", t.Kind)
}
