package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrServiceStopped = errors.New("call service stopped")

const (
	eventQueueSize  = 128
	sendTimeout     = 5 * time.Second
	rememberedCalls = 64
)

type CallConfig struct {
	Self   domain.UserID
	Name   string
	Avatar string
	// RingTimeout ends an unanswered outgoing call as missed. Zero disables it.
	RingTimeout time.Duration
	Clock       clock.Clock
}

// CallStatus is a point-in-time view of the controller.
type CallStatus struct {
	Session      domain.CallSession
	InCall       bool
	Seconds      int
	Muted        bool
	VideoEnabled bool
}

// CallService is the client-side call controller. Every state change runs
// on the loop started by Run; public methods post work to it.
type CallService struct {
	cfg        CallConfig
	clock      clock.Clock
	channel    port.SignalingChannel
	transports port.TransportFactory
	devices    port.MediaDevices
	history    *HistoryBridge
	observer   port.CallObserver

	events chan func()
	done   chan struct{}

	// loop owned
	att      *attempt
	last     domain.CallSession
	finished map[domain.CallID]struct{}
	order    []domain.CallID
}

// attempt is one call attempt. Async jobs capture it and their results are
// dropped once it is no longer current.
type attempt struct {
	session   *domain.CallSession
	ctx       context.Context
	cancel    context.CancelFunc
	media     *MediaSession
	neg       *negotiator
	transport port.Transport
	log       zerolog.Logger

	offer        *domain.Offer
	answerWanted bool
	negotiating  bool
	offerSent    bool

	seconds   int
	ticker    *clock.Ticker
	ringTimer *clock.Timer
}

func NewCallService(
	cfg CallConfig,
	channel port.SignalingChannel,
	transports port.TransportFactory,
	devices port.MediaDevices,
	history *HistoryBridge,
	observer port.CallObserver,
) *CallService {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	s := &CallService{
		cfg:        cfg,
		clock:      cfg.Clock,
		channel:    channel,
		transports: transports,
		devices:    devices,
		history:    history,
		observer:   observer,
		events:     make(chan func(), eventQueueSize),
		done:       make(chan struct{}),
		finished:   make(map[domain.CallID]struct{}),
	}
	channel.OnMessage(s.HandleMessage)
	return s
}

// Run processes events until ctx is done. A call still in progress is hung
// up on the way out.
func (s *CallService) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			if s.att != nil {
				s.hangup()
			}
			return ctx.Err()
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *CallService) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *CallService) do(fn func() error) error {
	errc := make(chan error, 1)
	if !s.post(func() { errc <- fn() }) {
		return ErrServiceStopped
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrServiceStopped
	}
}

// HandleMessage is the single consumer of the signaling channel.
func (s *CallService) HandleMessage(m domain.Message) {
	s.post(func() { domain.Dispatch(m, inbound{s}) })
}

func (s *CallService) Start(peer domain.UserID, t domain.CallType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: call type %q", domain.ErrBadRequest, t)
	}
	if peer == "" || peer == s.cfg.Self {
		return fmt.Errorf("%w: invalid peer %q", domain.ErrBadRequest, peer)
	}
	return s.do(func() error {
		if s.att != nil {
			return domain.ErrBusy
		}
		now := s.clock.Now()
		sess := domain.NewOutgoingSession("", s.cfg.Self, peer, t, now)
		sess.CallerName = s.cfg.Name
		sess.CallerAvatar = s.cfg.Avatar
		sess.Apply(domain.EventStart, now)
		att := s.newAttempt(sess)
		att.log.Info().Str("call_type", string(t)).Msg("Placing call")
		s.changed()
		go s.prepareOutgoing(att, peer, t)
		return nil
	})
}

func (s *CallService) Answer() error {
	return s.do(func() error {
		att := s.att
		if att == nil || att.session.State != domain.StateRinging {
			return domain.ErrIllegalTransition
		}
		if att.answerWanted {
			return nil
		}
		att.answerWanted = true
		if att.offer != nil {
			s.beginAnswer(att)
		} else {
			att.log.Debug().Msg("Answer waiting for offer")
		}
		return nil
	})
}

func (s *CallService) Reject() error {
	return s.do(s.reject)
}

// Hangup ends whatever call is in progress: it cancels an outgoing call,
// rejects a ringing one and ends an active one.
func (s *CallService) Hangup() error {
	return s.do(s.hangup)
}

func (s *CallService) SetMuted(muted bool) error {
	return s.do(func() error {
		if s.att == nil {
			return domain.ErrIllegalTransition
		}
		s.att.media.SetMuted(muted)
		return nil
	})
}

func (s *CallService) SetVideoEnabled(enabled bool) error {
	return s.do(func() error {
		if s.att == nil {
			return domain.ErrIllegalTransition
		}
		s.att.media.SetVideoEnabled(enabled)
		return nil
	})
}

// Status returns the current call, or the last finished one when idle.
func (s *CallService) Status() CallStatus {
	var st CallStatus
	err := s.do(func() error {
		if s.att == nil {
			st = CallStatus{Session: s.last}
			return nil
		}
		st = CallStatus{
			Session:      *s.att.session,
			InCall:       true,
			Seconds:      s.att.seconds,
			Muted:        s.att.media.Muted(),
			VideoEnabled: s.att.media.VideoEnabled(),
		}
		return nil
	})
	if err != nil {
		return CallStatus{}
	}
	return st
}

func (s *CallService) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return s.history.History(ctx, limit)
}

func (s *CallService) newAttempt(sess *domain.CallSession) *attempt {
	ctx, cancel := context.WithCancel(context.Background())
	att := &attempt{
		session: sess,
		ctx:     ctx,
		cancel:  cancel,
		media:   NewMediaSession(s.devices),
		log:     attemptLogger(sess),
	}
	att.neg = newNegotiator(sess.Peer(), s.send, att.log)
	att.neg.callID = sess.ID
	s.att = att
	return att
}

func attemptLogger(sess *domain.CallSession) zerolog.Logger {
	return log.With().
		Str("call_id", sess.ID.String()).
		Str("peer", sess.Peer().String()).
		Logger()
}

func (s *CallService) send(m domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.channel.Send(ctx, m); err != nil {
		log.Warn().Err(err).
			Str("action", string(m.Action())).
			Str("call_id", m.Head().CallID.String()).
			Msg("Signaling send failed")
	}
}

func (s *CallService) changed() {
	if s.att != nil {
		s.observer.CallChanged(*s.att.session)
	}
}

// Outgoing call: record, media, transport, offer.

func (s *CallService) prepareOutgoing(att *attempt, peer domain.UserID, t domain.CallType) {
	id := s.history.Created(att.ctx, peer, t)
	s.post(func() { s.onCreated(att, id) })

	local, err := att.media.Acquire(att.ctx, t == domain.CallVideo)
	if err != nil {
		s.post(func() { s.fail(att, err) })
		return
	}
	tr, err := s.openTransport(att, t, local)
	if err != nil {
		s.post(func() { s.fail(att, err) })
		return
	}
	sd, err := createOffer(att.ctx, tr)
	s.post(func() { s.onOfferReady(att, sd, err) })
}

func (s *CallService) onCreated(att *attempt, id domain.CallID) {
	if s.att != att {
		// The attempt ended before its record existed.
		s.history.Ended(id)
		return
	}
	att.session.ID = id
	att.neg.callID = id
	att.log = attemptLogger(att.session)
	att.neg.log = att.log
	s.changed()
}

func (s *CallService) onOfferReady(att *attempt, sd domain.SessionDescription, err error) {
	if s.att != att {
		return
	}
	if err != nil {
		s.fail(att, err)
		return
	}
	if s.cfg.RingTimeout > 0 {
		att.ringTimer = s.clock.AfterFunc(s.cfg.RingTimeout, func() {
			s.post(func() { s.onRingTimeout(att) })
		})
	}

	sess := att.session
	h := domain.Header{CallID: sess.ID, Target: sess.ReceiverID}
	s.send(&domain.IncomingCall{
		Header:       h,
		CallType:     sess.Type,
		CallerName:   sess.CallerName,
		CallerAvatar: sess.CallerAvatar,
	})
	s.send(&domain.Offer{Header: h, SDP: sd, CallType: sess.Type})
	att.offerSent = true
	att.neg.descriptionSent()
	att.log.Debug().Msg("Offer sent")
}

func (s *CallService) onAnswerApplied(att *attempt, err error) {
	if s.att != att {
		return
	}
	if err != nil {
		s.fail(att, err)
		return
	}
	att.neg.remoteDescriptionSet()
	if !att.session.Apply(domain.EventRemoteAnswered, s.clock.Now()) {
		return
	}
	if att.ringTimer != nil {
		att.ringTimer.Stop()
	}
	s.startTimer(att)
	att.log.Info().Msg("Call active")
	s.changed()
}

func (s *CallService) onRingTimeout(att *attempt) {
	if s.att != att || att.session.State != domain.StateCalling {
		return
	}
	att.log.Info().Dur("timeout", s.cfg.RingTimeout).Msg("Call not answered")
	s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonTimeout})
	if s.finish(att, domain.EventTimeout) {
		s.history.Ended(att.session.ID)
	}
}

// Incoming call: ring, then answer once both the user and the offer are in.

func (s *CallService) onIncoming(h domain.Header, t domain.CallType, name, avatar string, offer *domain.Offer) {
	if h.From == "" {
		log.Debug().Str("call_id", h.CallID.String()).Msg("Dropping unattributed call")
		return
	}
	if _, ok := s.finished[h.CallID]; ok {
		log.Debug().Err(domain.ErrStaleMessage).Str("call_id", h.CallID.String()).Msg("Dropping message")
		return
	}
	if att := s.att; att != nil {
		if att.session.ID != h.CallID || att.session.Peer() != h.From {
			log.Info().Str("call_id", h.CallID.String()).Str("from", h.From.String()).Msg("Busy, rejecting call")
			s.send(&domain.CallRejected{
				Header: domain.Header{CallID: h.CallID, Target: h.From},
				Reason: domain.ReasonBusy,
			})
			s.remember(h.CallID)
			return
		}
		if att.session.Outgoing {
			return
		}
		if name != "" && att.session.CallerName == "" {
			att.session.CallerName = name
			att.session.CallerAvatar = avatar
			s.changed()
		}
		if offer != nil && att.offer == nil {
			att.offer = offer
			if att.answerWanted {
				s.beginAnswer(att)
			}
		}
		return
	}

	sess := domain.NewIncomingSession(h.CallID, h.From, s.cfg.Self, t, s.clock.Now())
	sess.CallerName = name
	sess.CallerAvatar = avatar
	sess.Apply(domain.EventIncoming, s.clock.Now())
	att := s.newAttempt(sess)
	att.offer = offer
	att.log.Info().Str("call_type", string(t)).Msg("Incoming call")
	s.changed()
}

func (s *CallService) beginAnswer(att *attempt) {
	if att.negotiating {
		return
	}
	att.negotiating = true
	offer := att.offer
	t := att.session.Type
	go func() {
		local, err := att.media.Acquire(att.ctx, t == domain.CallVideo)
		if err != nil {
			s.post(func() { s.fail(att, err) })
			return
		}
		tr, err := s.openTransport(att, t, local)
		if err != nil {
			s.post(func() { s.fail(att, err) })
			return
		}
		err = setRemote(att.ctx, tr, offer.SDP)
		s.post(func() { s.onOfferApplied(att, tr, err) })
	}()
}

func (s *CallService) onOfferApplied(att *attempt, tr port.Transport, err error) {
	if s.att != att {
		return
	}
	if err != nil {
		s.fail(att, err)
		return
	}
	att.neg.remoteDescriptionSet()
	go func() {
		sd, err := createAnswer(att.ctx, tr)
		s.post(func() { s.onAnswerReady(att, sd, err) })
	}()
}

func (s *CallService) onAnswerReady(att *attempt, sd domain.SessionDescription, err error) {
	if s.att != att {
		return
	}
	if err != nil {
		s.fail(att, err)
		return
	}
	s.send(&domain.Answer{Header: s.toPeer(att), SDP: sd})
	att.neg.descriptionSent()
	if !att.session.Apply(domain.EventAnswered, s.clock.Now()) {
		return
	}
	s.startTimer(att)
	s.history.Answered(att.session.ID)
	att.log.Info().Msg("Call active")
	s.changed()
}

// Transport plumbing. openTransport runs off the loop.

func (s *CallService) openTransport(att *attempt, t domain.CallType, local port.LocalMedia) (port.Transport, error) {
	tr, err := s.transports.NewTransport(att.ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNegotiationFailure, err)
	}
	s.post(func() { s.adopt(att, tr) })

	tr.OnICECandidate(func(c domain.Candidate) {
		s.post(func() { s.onLocalCandidate(att, c) })
	})
	tr.OnConnectionStateChange(func(st domain.TransportState) {
		s.post(func() { s.onTransportState(att, st) })
	})
	tr.OnRemoteTrack(func(ti domain.TrackInfo) {
		s.post(func() {
			if s.att == att {
				s.observer.RemoteTrack(att.session.ID, ti)
			}
		})
	})
	if err := tr.AttachLocalMedia(local); err != nil {
		return nil, fmt.Errorf("%w: attach media: %v", domain.ErrNegotiationFailure, err)
	}
	return tr, nil
}

func (s *CallService) adopt(att *attempt, tr port.Transport) {
	if s.att != att {
		if err := tr.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close stale transport")
		}
		return
	}
	att.transport = tr
	att.neg.transport = tr
}

func (s *CallService) onLocalCandidate(att *attempt, c domain.Candidate) {
	if s.att != att {
		return
	}
	att.neg.localCandidate(c)
}

func (s *CallService) onTransportState(att *attempt, st domain.TransportState) {
	if s.att != att {
		return
	}
	att.log.Debug().Str("transport", string(st)).Msg("Transport state changed")
	if !st.Lost() {
		return
	}
	if att.session.State != domain.StateActive {
		s.fail(att, fmt.Errorf("%w: transport %s", domain.ErrNegotiationFailure, st))
		return
	}
	att.log.Warn().Str("transport", string(st)).Msg("Connection lost, ending call")
	s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonFailed})
	if s.finish(att, domain.EventTransportFailed) {
		s.history.Ended(att.session.ID)
	}
}

// Local terminal actions.

func (s *CallService) reject() error {
	att := s.att
	if att == nil || att.session.State != domain.StateRinging {
		return domain.ErrIllegalTransition
	}
	s.send(&domain.CallRejected{Header: s.toPeer(att)})
	if s.finish(att, domain.EventRejected) {
		s.history.Rejected(att.session.ID)
	}
	return nil
}

func (s *CallService) hangup() error {
	att := s.att
	if att == nil {
		return nil
	}
	switch att.session.State {
	case domain.StateRinging:
		return s.reject()
	case domain.StateCalling:
		if att.offerSent {
			s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonHangup})
		}
		if s.finish(att, domain.EventCancel) {
			s.history.Ended(att.session.ID)
		}
	case domain.StateActive:
		s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonHangup})
		if s.finish(att, domain.EventHangup) {
			s.history.Ended(att.session.ID)
		}
	}
	return nil
}

// fail aborts an attempt that has not reached active.
func (s *CallService) fail(att *attempt, err error) {
	if s.att != att {
		return
	}
	att.log.Warn().Err(err).Str("state", string(att.session.State)).Msg("Call attempt failed")
	if errors.Is(err, domain.ErrMediaAccess) {
		s.observer.CallError(err)
	}
	sess := att.session
	switch {
	case sess.State == domain.StateActive:
		s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonFailed})
		if s.finish(att, domain.EventTransportFailed) {
			s.history.Ended(sess.ID)
		}
	case sess.Outgoing:
		if att.offerSent {
			s.send(&domain.CallEnded{Header: s.toPeer(att), Reason: domain.ReasonFailed})
		}
		if s.finish(att, domain.EventFailed) {
			s.history.Ended(sess.ID)
		}
	default:
		s.send(&domain.CallRejected{Header: s.toPeer(att), Reason: domain.ReasonFailed})
		s.finish(att, domain.EventFailed)
	}
}

func (s *CallService) toPeer(att *attempt) domain.Header {
	return domain.Header{CallID: att.session.ID, Target: att.session.Peer()}
}

// finish applies a terminal event and cleans up. It is a no-op when the
// event is not legal in the current state.
func (s *CallService) finish(att *attempt, ev domain.CallEvent) bool {
	if !att.session.Apply(ev, s.clock.Now()) {
		return false
	}
	s.cleanup(att)
	return true
}

func (s *CallService) cleanup(att *attempt) {
	att.cancel()
	if att.ticker != nil {
		att.ticker.Stop()
	}
	if att.ringTimer != nil {
		att.ringTimer.Stop()
	}
	att.media.Release()
	if att.transport != nil {
		if err := att.transport.Close(); err != nil {
			att.log.Warn().Err(err).Msg("Failed to close transport")
		}
	}

	s.att = nil
	s.last = *att.session
	s.remember(att.session.ID)

	ev := att.log.Info().Str("outcome", string(s.last.Outcome))
	if d, ok := s.last.Duration(); ok {
		ev = ev.Dur("duration", d)
	}
	ev.Msg("Call finished")
	s.observer.CallChanged(s.last)
}

func (s *CallService) remember(id domain.CallID) {
	if id == "" {
		return
	}
	if _, ok := s.finished[id]; ok {
		return
	}
	s.finished[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > rememberedCalls {
		delete(s.finished, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *CallService) startTimer(att *attempt) {
	att.seconds = 0
	att.ticker = s.clock.Ticker(time.Second)
	go func(c <-chan time.Time, done <-chan struct{}) {
		for {
			select {
			case <-c:
				s.post(func() { s.onTick(att) })
			case <-done:
				return
			}
		}
	}(att.ticker.C, att.ctx.Done())
}

func (s *CallService) onTick(att *attempt) {
	if s.att != att || att.session.State != domain.StateActive {
		return
	}
	att.seconds++
	s.observer.DurationTick(att.session.ID, att.seconds)
}

// matching returns the current attempt when h belongs to it.
func (s *CallService) matching(h domain.Header) *attempt {
	att := s.att
	if att == nil || att.session.ID == "" || att.session.ID != h.CallID ||
		(h.From != "" && h.From != att.session.Peer()) {
		log.Debug().Err(domain.ErrStaleMessage).Str("call_id", h.CallID.String()).Msg("Dropping message")
		return nil
	}
	return att
}

type inbound struct{ s *CallService }

func (in inbound) HandleIncomingCall(m *domain.IncomingCall) {
	in.s.onIncoming(m.Head(), m.CallType, m.CallerName, m.CallerAvatar, nil)
}

func (in inbound) HandleOffer(m *domain.Offer) {
	in.s.onIncoming(m.Head(), m.CallType, "", "", m)
}

func (in inbound) HandleAnswer(m *domain.Answer) {
	s := in.s
	att := s.matching(m.Head())
	if att == nil {
		return
	}
	if !att.session.Outgoing || att.session.State != domain.StateCalling ||
		att.negotiating || !att.offerSent {
		att.log.Debug().Msg("Ignoring unexpected answer")
		return
	}
	att.negotiating = true
	tr := att.transport
	go func() {
		err := setRemote(att.ctx, tr, m.SDP)
		s.post(func() { s.onAnswerApplied(att, err) })
	}()
}

func (in inbound) HandleICECandidate(m *domain.ICECandidate) {
	if att := in.s.matching(m.Head()); att != nil {
		att.neg.remoteCandidate(m.Candidate)
	}
}

func (in inbound) HandleCallRejected(m *domain.CallRejected) {
	s := in.s
	att := s.matching(m.Head())
	if att == nil {
		return
	}
	att.log.Info().Str("reason", m.Reason).Msg("Call rejected by peer")
	if s.finish(att, domain.EventRemoteRejected) && att.session.Outgoing && m.Reason != "" {
		s.history.Ended(att.session.ID)
	}
}

func (in inbound) HandleCallEnded(m *domain.CallEnded) {
	s := in.s
	att := s.matching(m.Head())
	if att == nil {
		return
	}
	att.log.Info().Str("reason", m.Reason).Msg("Call ended by peer")
	s.finish(att, domain.EventRemoteEnded)
}

type nopObserver struct{}

func (nopObserver) CallChanged(domain.CallSession)           {}
func (nopObserver) DurationTick(domain.CallID, int)          {}
func (nopObserver) CallError(error)                          {}
func (nopObserver) RemoteTrack(domain.CallID, domain.TrackInfo) {}
