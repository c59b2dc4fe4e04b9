package domain

import (
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from CallState
		ev   CallEvent
		to   CallState
	}{
		{StateIdle, EventStart, StateCalling},
		{StateIdle, EventIncoming, StateRinging},
		{StateRinging, EventAnswered, StateActive},
		{StateRinging, EventRejected, StateEnded},
		{StateRinging, EventRemoteEnded, StateEnded},
		{StateRinging, EventRemoteRejected, StateEnded},
		{StateCalling, EventRemoteAnswered, StateActive},
		{StateCalling, EventRemoteRejected, StateEnded},
		{StateCalling, EventCancel, StateEnded},
		{StateActive, EventHangup, StateEnded},
		{StateActive, EventRemoteEnded, StateEnded},
		{StateActive, EventTransportFailed, StateEnded},
	}
	for _, tc := range legal {
		got, ok := Transition(tc.from, tc.ev)
		if !ok || got != tc.to {
			t.Errorf("Transition(%s, %s) = %s, %v; want %s", tc.from, tc.ev, got, ok, tc.to)
		}
	}

	illegal := []struct {
		from CallState
		ev   CallEvent
	}{
		{StateIdle, EventRemoteEnded},
		{StateIdle, EventRemoteAnswered},
		{StateIdle, EventHangup},
		{StateCalling, EventAnswered},
		{StateCalling, EventRemoteEnded},
		{StateRinging, EventRemoteAnswered},
		{StateActive, EventIncoming},
		{StateActive, EventStart},
		{StateEnded, EventRemoteEnded},
		{StateEnded, EventStart},
	}
	for _, tc := range illegal {
		if got, ok := Transition(tc.from, tc.ev); ok {
			t.Errorf("Transition(%s, %s) = %s; want illegal", tc.from, tc.ev, got)
		}
	}
}

func TestSessionApplyStampsOnce(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := NewOutgoingSession("c1", "x", "y", CallVoice, t0)

	if !s.Apply(EventStart, t0) {
		t.Fatal("start rejected")
	}
	if _, ok := s.Duration(); ok {
		t.Fatal("duration valid before answer")
	}
	if !s.Apply(EventRemoteAnswered, t0.Add(2*time.Second)) {
		t.Fatal("remote answer rejected")
	}
	if s.Apply(EventRemoteAnswered, t0.Add(5*time.Second)) {
		t.Fatal("second answer applied")
	}
	if !s.Apply(EventHangup, t0.Add(12*time.Second)) {
		t.Fatal("hangup rejected")
	}
	if s.Apply(EventRemoteEnded, t0.Add(20*time.Second)) {
		t.Fatal("remote end applied after hangup")
	}

	d, ok := s.Duration()
	if !ok || d != 10*time.Second {
		t.Fatalf("duration = %v, %v; want 10s", d, ok)
	}
	if s.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q", s.Outcome)
	}
	if s.Peer() != "y" {
		t.Fatalf("peer = %q", s.Peer())
	}
}

func TestSessionOutcomes(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		events []CallEvent
		want   Outcome
	}{
		{"callee rejects", []CallEvent{EventIncoming, EventRejected}, OutcomeRejected},
		{"caller cancels while ringing", []CallEvent{EventIncoming, EventRemoteEnded}, OutcomeMissed},
		{"media failure", []CallEvent{EventIncoming, EventFailed}, OutcomeFailed},
		{"transport lost", []CallEvent{EventIncoming, EventAnswered, EventTransportFailed}, OutcomeCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewIncomingSession("c1", "x", "y", CallVideo, now)
			for _, ev := range tc.events {
				if !s.Apply(ev, now) {
					t.Fatalf("event %s rejected in %s", ev, s.State)
				}
			}
			if !s.Terminal() || s.Outcome != tc.want {
				t.Fatalf("state %s outcome %q; want ended %q", s.State, s.Outcome, tc.want)
			}
		})
	}
}
