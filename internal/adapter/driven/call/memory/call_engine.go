package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
)

var ErrNoRemoteDescription = errors.New("remote description not set")

// Network links in-process transports. An offer carries the token of the
// transport that made it, which lets the answering side find its peer.
type Network struct {
	// Candidates is how many host candidates each transport reports after
	// its local description is set.
	Candidates int

	mu         sync.Mutex
	next       int
	transports []*Transport
	byToken    map[string]*Transport
}

func NewNetwork() *Network {
	return &Network{Candidates: 2, byToken: make(map[string]*Transport)}
}

func (n *Network) NewTransport(ctx context.Context, callType domain.CallType) (port.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	t := &Transport{
		net:        n,
		token:      fmt.Sprintf("loop%d", n.next),
		callType:   callType,
		state:      domain.TransportNew,
		candidates: n.Candidates,
	}
	n.transports = append(n.transports, t)
	n.byToken[t.token] = t
	return t, nil
}

// Transports returns every transport created so far, oldest first.
func (n *Network) Transports() []*Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Transport(nil), n.transports...)
}

func (n *Network) lookup(token string) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.byToken[token]
}

// Transport is a loopback implementation of port.Transport.
type Transport struct {
	net        *Network
	token      string
	callType   domain.CallType
	candidates int

	mu      sync.Mutex
	local   *domain.SessionDescription
	remote  *domain.SessionDescription
	peer    *Transport
	state   domain.TransportState
	media   port.LocalMedia
	applied []domain.Candidate
	early   int

	onCandidate func(domain.Candidate)
	onState     func(domain.TransportState)
	onTrack     func(domain.TrackInfo)
}

func (t *Transport) Token() string { return t.token }

func (t *Transport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == domain.TransportClosed {
		return domain.SessionDescription{}, errors.New("transport closed")
	}
	return domain.SessionDescription{Type: "offer", SDP: t.sdp()}, nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote == nil || t.remote.Type != "offer" {
		return domain.SessionDescription{}, ErrNoRemoteDescription
	}
	return domain.SessionDescription{Type: "answer", SDP: t.sdp()}, nil
}

func (t *Transport) sdp() string {
	return fmt.Sprintf("v=0\r\no=loopback %s 0 IN IP4 127.0.0.1\r\ns=-\r\na=call-type:%s\r\n", t.token, t.callType)
}

func tokenOf(sdp string) string {
	for _, line := range strings.Split(sdp, "\r\n") {
		if f := strings.Fields(line); len(f) > 1 && f[0] == "o=loopback" {
			return f[1]
		}
	}
	return ""
}

func (t *Transport) SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error {
	t.mu.Lock()
	if t.state == domain.TransportClosed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.local = &sd
	fn := t.onCandidate
	count := t.candidates
	t.mu.Unlock()

	if fn != nil && count > 0 {
		go func() {
			for i := 0; i < count; i++ {
				fn(domain.Candidate{Candidate: fmt.Sprintf("candidate:%s %d udp 2122260223 127.0.0.1 %d typ host", t.token, i, 50000+i)})
			}
		}()
	}
	t.maybeConnect()
	return nil
}

func (t *Transport) SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error {
	peer := t.net.lookup(tokenOf(sd.SDP))
	if peer == nil || peer == t {
		return fmt.Errorf("unknown remote description %q", tokenOf(sd.SDP))
	}
	t.mu.Lock()
	if t.state == domain.TransportClosed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	t.remote = &sd
	t.peer = peer
	t.mu.Unlock()

	peer.mu.Lock()
	if peer.peer == nil {
		peer.peer = t
	}
	peer.mu.Unlock()

	t.maybeConnect()
	return nil
}

func (t *Transport) ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local != nil && t.remote != nil && t.state == domain.TransportNew
}

// maybeConnect marks both ends connected once each has a local and a
// remote description.
func (t *Transport) maybeConnect() {
	t.mu.Lock()
	peer := t.peer
	t.mu.Unlock()
	if peer == nil || !t.ready() || !peer.ready() {
		return
	}
	t.setState(domain.TransportConnected)
	peer.setState(domain.TransportConnected)
	t.deliverTracks(peer)
	peer.deliverTracks(t)
}

func (t *Transport) deliverTracks(to *Transport) {
	t.mu.Lock()
	media := t.media
	t.mu.Unlock()
	to.mu.Lock()
	fn := to.onTrack
	to.mu.Unlock()
	if media == nil || fn == nil {
		return
	}
	for _, tr := range media.Tracks() {
		fn(domain.TrackInfo{ID: tr.ID(), Kind: tr.Kind()})
	}
}

func (t *Transport) setState(st domain.TransportState) {
	t.mu.Lock()
	if t.state == st || t.state == domain.TransportClosed {
		t.mu.Unlock()
		return
	}
	t.state = st
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (t *Transport) AddICECandidate(c domain.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote == nil {
		t.early++
		return ErrNoRemoteDescription
	}
	t.applied = append(t.applied, c)
	return nil
}

func (t *Transport) OnICECandidate(fn func(domain.Candidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = fn
}

func (t *Transport) OnConnectionStateChange(fn func(domain.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

func (t *Transport) OnRemoteTrack(fn func(domain.TrackInfo)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrack = fn
}

func (t *Transport) AttachLocalMedia(m port.LocalMedia) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.media = m
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = domain.TransportClosed
	return nil
}

// Fail simulates the connection dropping.
func (t *Transport) Fail(st domain.TransportState) {
	t.setState(st)
}

func (t *Transport) State() domain.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Applied returns the remote candidates accepted so far, in order.
func (t *Transport) Applied() []domain.Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Candidate(nil), t.applied...)
}

// Early counts candidates that arrived before the remote description.
func (t *Transport) Early() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.early
}

// Negotiated reports whether both descriptions were applied.
func (t *Transport) Negotiated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local != nil && t.remote != nil
}
