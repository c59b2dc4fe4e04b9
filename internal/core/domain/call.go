package domain

import (
	"fmt"
	"time"
)

type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallVoice || t == CallVideo
}

func ParseCallType(s string) (CallType, error) {
	t := CallType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown call type %q", ErrBadRequest, s)
	}
	return t, nil
}

type CallState string

const (
	StateIdle    CallState = "idle"
	StateCalling CallState = "calling"
	StateRinging CallState = "ringing"
	StateActive  CallState = "active"
	// StateEnded marks a finished session. The owning controller is back to
	// idle once its session reaches it.
	StateEnded CallState = "ended"
)

type CallEvent int

const (
	EventStart           CallEvent = iota // local user places a call
	EventIncoming                         // incoming-call or first offer
	EventAnswered                         // local answer created and sent
	EventRemoteAnswered                   // remote answer applied
	EventRejected                         // local reject
	EventRemoteRejected                   // call-rejected received
	EventCancel                           // local cancel before answer
	EventRemoteEnded                      // call-ended received
	EventHangup                           // local end of an active call
	EventTransportFailed                  // transport disconnected or failed
	EventFailed                           // local failure before active
	EventTimeout                          // unanswered outgoing call
)

var eventNames = [...]string{
	"start", "incoming", "answered", "remote_answered", "rejected",
	"remote_rejected", "cancel", "remote_ended", "hangup",
	"transport_failed", "failed", "timeout",
}

func (e CallEvent) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var transitions = map[CallState]map[CallEvent]CallState{
	StateIdle: {
		EventStart:    StateCalling,
		EventIncoming: StateRinging,
	},
	StateCalling: {
		EventRemoteAnswered: StateActive,
		EventRemoteRejected: StateEnded,
		EventCancel:         StateEnded,
		EventFailed:         StateEnded,
		EventTimeout:        StateEnded,
	},
	StateRinging: {
		EventAnswered:       StateActive,
		EventRejected:       StateEnded,
		EventRemoteRejected: StateEnded,
		EventRemoteEnded:    StateEnded,
		EventFailed:         StateEnded,
	},
	StateActive: {
		EventHangup:          StateEnded,
		EventRemoteEnded:     StateEnded,
		EventTransportFailed: StateEnded,
	},
}

// Transition returns the state reached from s on ev. ok is false for any
// pair not in the table; callers must treat that as a no-op.
func Transition(s CallState, ev CallEvent) (next CallState, ok bool) {
	next, ok = transitions[s][ev]
	return next, ok
}

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "ended"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeMissed    Outcome = "missed"
	OutcomeFailed    Outcome = "failed"
)

// CallSession is one call attempt from creation to its return to idle.
type CallSession struct {
	ID         CallID
	CallerID   UserID
	ReceiverID UserID
	Type       CallType
	State      CallState
	Outgoing   bool

	CallerName   string
	CallerAvatar string

	StartedAt  time.Time
	AnsweredAt time.Time
	EndedAt    time.Time
	Outcome    Outcome
}

func NewOutgoingSession(id CallID, self, peer UserID, t CallType, now time.Time) *CallSession {
	return &CallSession{
		ID:         id,
		CallerID:   self,
		ReceiverID: peer,
		Type:       t,
		State:      StateIdle,
		Outgoing:   true,
		StartedAt:  now,
	}
}

func NewIncomingSession(id CallID, caller, self UserID, t CallType, now time.Time) *CallSession {
	return &CallSession{
		ID:         id,
		CallerID:   caller,
		ReceiverID: self,
		Type:       t,
		State:      StateIdle,
		StartedAt:  now,
	}
}

// Peer returns the other participant.
func (s *CallSession) Peer() UserID {
	if s.Outgoing {
		return s.ReceiverID
	}
	return s.CallerID
}

// Apply moves the session along the transition table and stamps the
// timestamps that become known. It reports false and leaves the session
// untouched when the event is not legal in the current state.
func (s *CallSession) Apply(ev CallEvent, now time.Time) bool {
	next, ok := Transition(s.State, ev)
	if !ok {
		return false
	}
	prev := s.State
	s.State = next

	switch next {
	case StateActive:
		if s.AnsweredAt.IsZero() {
			s.AnsweredAt = now
		}
	case StateEnded:
		if s.EndedAt.IsZero() {
			s.EndedAt = now
		}
		s.Outcome = outcomeOf(prev, ev)
	}
	return true
}

func outcomeOf(prev CallState, ev CallEvent) Outcome {
	switch ev {
	case EventRejected, EventRemoteRejected:
		return OutcomeRejected
	case EventCancel:
		return OutcomeCancelled
	case EventTimeout:
		return OutcomeMissed
	case EventFailed:
		return OutcomeFailed
	case EventRemoteEnded:
		if prev == StateRinging {
			return OutcomeMissed
		}
	}
	return OutcomeCompleted
}

// Duration is valid only once the call was answered and has ended.
func (s *CallSession) Duration() (time.Duration, bool) {
	if s.AnsweredAt.IsZero() || s.EndedAt.IsZero() {
		return 0, false
	}
	return s.EndedAt.Sub(s.AnsweredAt), true
}

func (s *CallSession) Terminal() bool {
	return s.State == StateEnded
}
