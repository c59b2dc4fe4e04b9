package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/gateway/ws"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/persistence/memory"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/service"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	hub  *ws.Hub
	auth *Authenticator
	clk  *clock.Mock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	clk := clock.NewMock()
	auth := NewAuthenticator(testSecret)
	h := NewHandler(
		service.NewRelayService(hub),
		service.NewCallRecordService(memory.NewCallRecordRepository(), clk),
		hub, auth, []string{"*"},
	)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, auth: auth, clk: clk}
}

func (s *testServer) token(t *testing.T, user domain.UserID) string {
	t.Helper()
	tok, err := s.auth.Issue(user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, user domain.UserID, method, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *testServer) dial(t *testing.T, user domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/calls/" + user.String() + "?token=" + s.token(t, user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !s.hub.Online(user) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", user)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) domain.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	m, err := domain.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestCallRecordEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "alice", http.MethodPost, "/api/calls/initiate", initiateRequest{ReceiverID: "bob", CallType: "video"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("initiate status %d", resp.StatusCode)
	}
	var rec domain.CallRecord
	if err := json.Unmarshal(body["call"], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.Status != domain.RecordRinging || rec.Type != domain.CallVideo {
		t.Fatalf("created %+v", rec)
	}

	if resp, _ := s.do(t, "alice", http.MethodPost, "/api/calls/"+rec.ID.String()+"/answer", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("caller answer status %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, "mallory", http.MethodPost, "/api/calls/"+rec.ID.String()+"/end", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("outsider end status %d", resp.StatusCode)
	}

	if resp, _ := s.do(t, "bob", http.MethodPost, "/api/calls/"+rec.ID.String()+"/answer", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("answer status %d", resp.StatusCode)
	}
	s.clk.Add(30 * time.Second)
	resp, body = s.do(t, "alice", http.MethodPost, "/api/calls/"+rec.ID.String()+"/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body["call"], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.RecordEnded || rec.Duration != 30 {
		t.Fatalf("ended %+v", rec)
	}

	resp, body = s.do(t, "bob", http.MethodGet, "/api/calls/history?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	var entries []domain.HistoryEntry
	if err := json.Unmarshal(body["calls"], &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].IsOutgoing || entries[0].OtherUserID != "alice" {
		t.Fatalf("history %+v", entries)
	}
}

func TestCallRecordEndpointsRejectBadInput(t *testing.T) {
	s := newTestServer(t)

	if resp, _ := s.do(t, "", http.MethodGet, "/api/calls/history", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, "alice", http.MethodPost, "/api/calls/initiate", initiateRequest{ReceiverID: "alice", CallType: "voice"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self call status %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, "alice", http.MethodPost, "/api/calls/initiate", initiateRequest{ReceiverID: "bob", CallType: "fax"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type status %d", resp.StatusCode)
	}
	if resp, _ := s.do(t, "alice", http.MethodGet, "/api/calls/history?limit=abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", resp.StatusCode)
	}
}

func TestWebSocketRequiresMatchingToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/calls/bob?token=" + s.token(t, "alice")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response %+v", resp)
	}
}

func TestWebSocketRelaysSignaling(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	offer := `{"action":"offer","call_id":"c1","target_user":"bob","from_user":"eve","call_type":"voice","sdp":{"type":"offer","sdp":"v=0"}}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(offer)); err != nil {
		t.Fatal(err)
	}
	m := readMessage(t, bob)
	o, ok := m.(*domain.Offer)
	if !ok {
		t.Fatalf("bob got %T", m)
	}
	if o.From != "alice" || o.CallID != "c1" || o.SDP.SDP != "v=0" {
		t.Fatalf("offer %+v", o)
	}

	// Malformed frames are dropped without closing the socket.
	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"action":"answer"}`)); err != nil {
		t.Fatal(err)
	}
	answer := `{"action":"answer","call_id":"c1","target_user":"alice","sdp":{"type":"answer","sdp":"v=0"}}`
	if err := bob.WriteMessage(websocket.TextMessage, []byte(answer)); err != nil {
		t.Fatal(err)
	}
	if _, ok := readMessage(t, alice).(*domain.Answer); !ok {
		t.Fatal("alice did not get the answer")
	}
}

func TestWebSocketBouncesCallToOfflineUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")

	call := `{"action":"incoming-call","call_id":"c9","target_user":"carol","call_type":"video","caller_name":"Alice","caller_avatar":""}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(call)); err != nil {
		t.Fatal(err)
	}
	m := readMessage(t, alice)
	r, ok := m.(*domain.CallRejected)
	if !ok {
		t.Fatalf("alice got %T", m)
	}
	if r.Reason != domain.ReasonOffline || r.From != "carol" || r.CallID != "c9" {
		t.Fatalf("bounce %+v", r)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, "", http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || string(body["status"]) != `"ok"` {
		t.Fatalf("healthz %d %s", resp.StatusCode, body["status"])
	}
}
