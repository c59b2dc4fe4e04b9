package domain

type Action string

const (
	ActionIncomingCall Action = "incoming-call"
	ActionOffer        Action = "offer"
	ActionAnswer       Action = "answer"
	ActionICECandidate Action = "ice-candidate"
	ActionCallRejected Action = "call-rejected"
	ActionCallEnded    Action = "call-ended"
)

// Reasons carried by call-rejected and call-ended.
const (
	ReasonBusy    = "busy"
	ReasonOffline = "offline"
	ReasonTimeout = "timeout"
	ReasonFailed  = "failed"
	ReasonHangup  = "hangup"
)

type Header struct {
	CallID CallID
	Target UserID
	// From is stamped by the relay; senders leave it empty.
	From UserID
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Message is a signaling message. The set of variants is closed; use
// Dispatch with a MessageHandler to handle all of them.
type Message interface {
	Action() Action
	Head() Header
	header() *Header
	accept(h MessageHandler)
}

type MessageHandler interface {
	HandleIncomingCall(m *IncomingCall)
	HandleOffer(m *Offer)
	HandleAnswer(m *Answer)
	HandleICECandidate(m *ICECandidate)
	HandleCallRejected(m *CallRejected)
	HandleCallEnded(m *CallEnded)
}

func Dispatch(m Message, h MessageHandler) {
	m.accept(h)
}

// Stamp records the authenticated sender on m.
func Stamp(m Message, from UserID) {
	m.header().From = from
}

type IncomingCall struct {
	Header
	CallType     CallType
	CallerName   string
	CallerAvatar string
}

type Offer struct {
	Header
	SDP      SessionDescription
	CallType CallType
}

type Answer struct {
	Header
	SDP SessionDescription
}

type ICECandidate struct {
	Header
	Candidate Candidate
}

type CallRejected struct {
	Header
	Reason string
}

type CallEnded struct {
	Header
	Reason string
}

func (m *IncomingCall) Action() Action { return ActionIncomingCall }
func (m *Offer) Action() Action        { return ActionOffer }
func (m *Answer) Action() Action       { return ActionAnswer }
func (m *ICECandidate) Action() Action { return ActionICECandidate }
func (m *CallRejected) Action() Action { return ActionCallRejected }
func (m *CallEnded) Action() Action    { return ActionCallEnded }

func (h *Header) Head() Header     { return *h }
func (h *Header) header() *Header { return h }

func (m *IncomingCall) accept(h MessageHandler) { h.HandleIncomingCall(m) }
func (m *Offer) accept(h MessageHandler)        { h.HandleOffer(m) }
func (m *Answer) accept(h MessageHandler)       { h.HandleAnswer(m) }
func (m *ICECandidate) accept(h MessageHandler) { h.HandleICECandidate(m) }
func (m *CallRejected) accept(h MessageHandler) { h.HandleCallRejected(m) }
func (m *CallEnded) accept(h MessageHandler)    { h.HandleCallEnded(m) }
