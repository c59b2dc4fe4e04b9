package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
)

// fakeRelay routes messages between fakeChannels the way the server does:
// through the wire codec, stamped with the sender.
type fakeRelay struct {
	mu       sync.Mutex
	channels map[domain.UserID]*fakeChannel
	held     map[domain.Action]bool
	queue    []heldMessage
}

type heldMessage struct {
	to  *fakeChannel
	msg domain.Message
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		channels: make(map[domain.UserID]*fakeChannel),
		held:     make(map[domain.Action]bool),
	}
}

func (r *fakeRelay) channel(id domain.UserID) *fakeChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := &fakeChannel{relay: r, id: id}
	r.channels[id] = ch
	return ch
}

// hold keeps messages of action a from being delivered until release.
func (r *fakeRelay) hold(a domain.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held[a] = true
}

func (r *fakeRelay) release() {
	r.mu.Lock()
	q := r.queue
	r.queue = nil
	r.held = make(map[domain.Action]bool)
	r.mu.Unlock()
	for _, h := range q {
		h.to.deliver(h.msg)
	}
}

func (r *fakeRelay) route(from domain.UserID, m domain.Message) error {
	data, err := domain.Encode(m)
	if err != nil {
		return err
	}
	out, err := domain.Decode(data)
	if err != nil {
		return err
	}
	domain.Stamp(out, from)

	r.mu.Lock()
	to, ok := r.channels[out.Head().Target]
	if ok && r.held[out.Action()] {
		r.queue = append(r.queue, heldMessage{to: to, msg: out})
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrUserOffline
	}
	to.deliver(out)
	return nil
}

type fakeChannel struct {
	relay *fakeRelay
	id    domain.UserID

	mu       sync.Mutex
	handler  func(domain.Message)
	sent     []domain.Message
	received []domain.Message
}

func (c *fakeChannel) Connect(ctx context.Context, userID domain.UserID) error { return nil }

func (c *fakeChannel) Send(ctx context.Context, m domain.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, m)
	c.mu.Unlock()
	return c.relay.route(c.id, m)
}

func (c *fakeChannel) OnMessage(h func(domain.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeChannel) State() domain.ConnectionState {
	return domain.ConnectionState{UserID: c.id, Connected: true}
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) deliver(m domain.Message) {
	c.mu.Lock()
	c.received = append(c.received, m)
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(m)
	}
}

func (c *fakeChannel) sentActions() []domain.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Action
	for _, m := range c.sent {
		out = append(out, m.Action())
	}
	return out
}

func (c *fakeChannel) sentOf(a domain.Action) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Message
	for _, m := range c.sent {
		if m.Action() == a {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeChannel) receivedOf(a domain.Action) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Message
	for _, m := range c.received {
		if m.Action() == a {
			out = append(out, m)
		}
	}
	return out
}

type fakeTrack struct {
	id   string
	kind domain.TrackKind

	mu      sync.Mutex
	enabled bool
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) SetEnabled(e bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = e
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

type fakeMedia struct {
	tracks []port.MediaTrack

	mu     sync.Mutex
	closed int
}

func (m *fakeMedia) Tracks() []port.MediaTrack { return m.tracks }

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *fakeMedia) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeDevices struct {
	err  error
	gate chan struct{}

	mu     sync.Mutex
	calls  int
	issued []*fakeMedia
}

func (d *fakeDevices) GetUserMedia(ctx context.Context, video bool) (port.LocalMedia, error) {
	d.mu.Lock()
	d.calls++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if d.err != nil {
		return nil, d.err
	}
	m := &fakeMedia{tracks: []port.MediaTrack{&fakeTrack{id: "mic", kind: domain.TrackAudio, enabled: true}}}
	if video {
		m.tracks = append(m.tracks, &fakeTrack{id: "cam", kind: domain.TrackVideo, enabled: true})
	}
	d.mu.Lock()
	d.issued = append(d.issued, m)
	d.mu.Unlock()
	return m, nil
}

func (d *fakeDevices) acquired() []*fakeMedia {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeMedia(nil), d.issued...)
}

func (d *fakeDevices) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type historyCall struct {
	op string
	id domain.CallID
}

type fakeHistory struct {
	prefix    string
	createErr error
	failAll   bool

	mu    sync.Mutex
	calls []historyCall
	next  int
}

var errHistoryDown = errors.New("history service down")

func (h *fakeHistory) Create(ctx context.Context, receiver domain.UserID, t domain.CallType) (domain.CallRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return domain.CallRecord{}, h.createErr
	}
	h.next++
	id := domain.CallID(fmt.Sprintf("%sc%d", h.prefix, h.next))
	h.calls = append(h.calls, historyCall{"create", id})
	return domain.CallRecord{ID: id, ReceiverID: receiver, Type: t, Status: domain.RecordRinging}, nil
}

func (h *fakeHistory) record(op string, id domain.CallID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, historyCall{op, id})
	if h.failAll {
		return errHistoryDown
	}
	return nil
}

func (h *fakeHistory) Answer(ctx context.Context, id domain.CallID) error { return h.record("answer", id) }
func (h *fakeHistory) Reject(ctx context.Context, id domain.CallID) error { return h.record("reject", id) }
func (h *fakeHistory) End(ctx context.Context, id domain.CallID) error    { return h.record("end", id) }

func (h *fakeHistory) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (h *fakeHistory) ops() []historyCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyCall(nil), h.calls...)
}

type fakeObserver struct {
	mu     sync.Mutex
	states []domain.CallSession
	ticks  []int
	errs   []error
	tracks []domain.TrackInfo
}

func (o *fakeObserver) CallChanged(s domain.CallSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *fakeObserver) DurationTick(id domain.CallID, seconds int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks = append(o.ticks, seconds)
}

func (o *fakeObserver) CallError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *fakeObserver) RemoteTrack(id domain.CallID, t domain.TrackInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks = append(o.tracks, t)
}

func (o *fakeObserver) errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

func (o *fakeObserver) remoteTracks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tracks)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
