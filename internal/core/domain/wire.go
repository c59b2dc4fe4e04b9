package domain

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Action       Action              `json:"action"`
	CallID       CallID              `json:"call_id"`
	TargetUser   UserID              `json:"target_user"`
	FromUser     UserID              `json:"from_user,omitempty"`
	CallType     CallType            `json:"call_type,omitempty"`
	CallerName   *string             `json:"caller_name,omitempty"`
	CallerAvatar *string             `json:"caller_avatar,omitempty"`
	SDP          *SessionDescription `json:"sdp,omitempty"`
	Candidate    *Candidate          `json:"candidate,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

// Encode renders m in the JSON shape exchanged over the signaling channel.
func Encode(m Message) ([]byte, error) {
	h := m.Head()
	env := envelope{
		Action:     m.Action(),
		CallID:     h.CallID,
		TargetUser: h.Target,
		FromUser:   h.From,
	}
	switch v := m.(type) {
	case *IncomingCall:
		env.CallType = v.CallType
		env.CallerName = &v.CallerName
		env.CallerAvatar = &v.CallerAvatar
	case *Offer:
		env.CallType = v.CallType
		env.SDP = &v.SDP
	case *Answer:
		env.SDP = &v.SDP
	case *ICECandidate:
		env.Candidate = &v.Candidate
	case *CallRejected:
		env.Reason = v.Reason
	case *CallEnded:
		env.Reason = v.Reason
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}
	return json.Marshal(env)
}

// Decode parses one wire message. Unknown actions and messages missing a
// required field are rejected with ErrBadRequest.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if env.CallID == "" {
		return nil, missing(env.Action, "call_id")
	}
	if env.TargetUser == "" {
		return nil, missing(env.Action, "target_user")
	}
	h := Header{CallID: env.CallID, Target: env.TargetUser, From: env.FromUser}

	switch env.Action {
	case ActionIncomingCall:
		if !env.CallType.Valid() {
			return nil, missing(env.Action, "call_type")
		}
		if env.CallerName == nil {
			return nil, missing(env.Action, "caller_name")
		}
		if env.CallerAvatar == nil {
			return nil, missing(env.Action, "caller_avatar")
		}
		return &IncomingCall{
			Header:       h,
			CallType:     env.CallType,
			CallerName:   *env.CallerName,
			CallerAvatar: *env.CallerAvatar,
		}, nil
	case ActionOffer:
		if env.SDP == nil || env.SDP.SDP == "" {
			return nil, missing(env.Action, "sdp")
		}
		if !env.CallType.Valid() {
			return nil, missing(env.Action, "call_type")
		}
		sdp := *env.SDP
		if sdp.Type == "" {
			sdp.Type = "offer"
		}
		return &Offer{Header: h, SDP: sdp, CallType: env.CallType}, nil
	case ActionAnswer:
		if env.SDP == nil || env.SDP.SDP == "" {
			return nil, missing(env.Action, "sdp")
		}
		sdp := *env.SDP
		if sdp.Type == "" {
			sdp.Type = "answer"
		}
		return &Answer{Header: h, SDP: sdp}, nil
	case ActionICECandidate:
		if env.Candidate == nil {
			return nil, missing(env.Action, "candidate")
		}
		return &ICECandidate{Header: h, Candidate: *env.Candidate}, nil
	case ActionCallRejected:
		return &CallRejected{Header: h, Reason: env.Reason}, nil
	case ActionCallEnded:
		return &CallEnded{Header: h, Reason: env.Reason}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrBadRequest, env.Action)
	}
}

func missing(a Action, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrBadRequest, a, field)
}
