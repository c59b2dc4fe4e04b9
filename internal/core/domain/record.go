package domain

import (
	"fmt"
	"time"
)

type RecordStatus string

const (
	RecordRinging  RecordStatus = "ringing"
	RecordActive   RecordStatus = "active"
	RecordEnded    RecordStatus = "ended"
	RecordRejected RecordStatus = "rejected"
	RecordMissed   RecordStatus = "missed"
)

func (s RecordStatus) Final() bool {
	return s == RecordEnded || s == RecordRejected || s == RecordMissed
}

// CallRecord is the persisted history of one call.
type CallRecord struct {
	ID         CallID       `json:"call_id"`
	CallerID   UserID       `json:"caller_id"`
	ReceiverID UserID       `json:"receiver_id"`
	Type       CallType     `json:"call_type"`
	Status     RecordStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	AnsweredAt *time.Time   `json:"answered_at,omitempty"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
	// Duration in whole seconds; zero unless the call was answered.
	Duration int64 `json:"duration"`
}

func NewCallRecord(caller, receiver UserID, t CallType, now time.Time) (*CallRecord, error) {
	if receiver == "" {
		return nil, fmt.Errorf("%w: receiver_id is required", ErrBadRequest)
	}
	if caller == receiver {
		return nil, fmt.Errorf("%w: cannot call yourself", ErrBadRequest)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrBadRequest, t)
	}
	return &CallRecord{
		ID:         NewCallID(),
		CallerID:   caller,
		ReceiverID: receiver,
		Type:       t,
		Status:     RecordRinging,
		CreatedAt:  now.UTC(),
	}, nil
}

func (r *CallRecord) Involves(u UserID) bool {
	return r.CallerID == u || r.ReceiverID == u
}

func (r *CallRecord) Answer(by UserID, now time.Time) error {
	if by != r.ReceiverID {
		return fmt.Errorf("%w: only the receiver can answer", ErrForbidden)
	}
	if r.Status == RecordActive {
		return nil
	}
	if r.Status != RecordRinging {
		return fmt.Errorf("%w: call is %s", ErrIllegalTransition, r.Status)
	}
	at := now.UTC()
	r.Status = RecordActive
	r.AnsweredAt = &at
	return nil
}

func (r *CallRecord) Reject(by UserID, now time.Time) error {
	if by != r.ReceiverID {
		return fmt.Errorf("%w: only the receiver can reject", ErrForbidden)
	}
	if r.Status == RecordRejected {
		return nil
	}
	if r.Status != RecordRinging {
		return fmt.Errorf("%w: call is %s", ErrIllegalTransition, r.Status)
	}
	at := now.UTC()
	r.Status = RecordRejected
	r.EndedAt = &at
	return nil
}

// End closes the record. An unanswered call becomes missed; ending a
// finished record is a no-op.
func (r *CallRecord) End(by UserID, now time.Time) error {
	if !r.Involves(by) {
		return fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	if r.Status.Final() {
		return nil
	}
	at := now.UTC()
	r.EndedAt = &at
	if r.Status == RecordActive && r.AnsweredAt != nil {
		r.Status = RecordEnded
		r.Duration = int64(at.Sub(*r.AnsweredAt) / time.Second)
		return nil
	}
	r.Status = RecordMissed
	return nil
}

// HistoryEntry is a CallRecord as seen by one of its participants.
type HistoryEntry struct {
	CallRecord
	IsOutgoing  bool   `json:"is_outgoing"`
	OtherUserID UserID `json:"other_user_id"`
}

func (r CallRecord) ViewFor(u UserID) HistoryEntry {
	e := HistoryEntry{CallRecord: r, IsOutgoing: r.CallerID == u, OtherUserID: r.CallerID}
	if e.IsOutgoing {
		e.OtherUserID = r.ReceiverID
	}
	return e
}
