package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const pliInterval = 3 * time.Second

// CodecRegistrar fills a media engine with the codecs local capture produces.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

type Config struct {
	STUNURLs               []string
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	// IncludeLoopback gathers 127.0.0.1 candidates, for single-host setups.
	IncludeLoopback bool
	// Codecs defaults to pion's default codec set.
	Codecs CodecRegistrar
}

// Engine creates peer connections. It implements port.TransportFactory.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewEngine(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if cfg.Codecs != nil {
		if err := cfg.Codecs.RegisterCodecs(m); err != nil {
			return nil, err
		}
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if cfg.ICEDisconnectedTimeout > 0 && cfg.ICEFailedTimeout > 0 {
		se.SetICETimeouts(cfg.ICEDisconnectedTimeout, cfg.ICEFailedTimeout, 2*time.Second)
	}
	if cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	var servers []webrtc.ICEServer
	if len(cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		config: webrtc.Configuration{ICEServers: servers},
	}, nil
}

func (e *Engine) NewTransport(ctx context.Context, callType domain.CallType) (port.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	tctx, cancel := context.WithCancel(context.Background())
	return &Transport{pc: pc, callType: callType, ctx: tctx, cancel: cancel}, nil
}

// Transport is one call's peer connection.
type Transport struct {
	pc       *webrtc.PeerConnection
	callType domain.CallType

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tracks []*LocalTrack
}

var errUnsupportedTrack = errors.New("track was not captured by this engine")

func (t *Transport) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return toDomain(offer), nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return toDomain(answer), nil
}

func (t *Transport) SetLocalDescription(ctx context.Context, sd domain.SessionDescription) error {
	return t.pc.SetLocalDescription(fromDomain(sd))
}

func (t *Transport) SetRemoteDescription(ctx context.Context, sd domain.SessionDescription) error {
	return t.pc.SetRemoteDescription(fromDomain(sd))
}

func (t *Transport) AddICECandidate(c domain.Candidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *Transport) OnICECandidate(fn func(domain.Candidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		ci := c.ToJSON()
		fn(domain.Candidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		})
	})
}

func (t *Transport) OnConnectionStateChange(fn func(domain.TransportState)) {
	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(stateOf(s))
	})
}

// AttachLocalMedia adds every captured track. A video call without a camera
// still offers to receive video.
func (t *Transport) AttachLocalMedia(m port.LocalMedia) error {
	hasVideo := false
	for _, mt := range m.Tracks() {
		lt, ok := mt.(*LocalTrack)
		if !ok {
			return fmt.Errorf("%w: %s", errUnsupportedTrack, mt.ID())
		}
		sender, err := t.pc.AddTrack(lt.local)
		if err != nil {
			return fmt.Errorf("add %s track: %w", lt.kind, err)
		}
		lt.bind(sender)
		go drainRTCP(sender)
		if lt.kind == domain.TrackVideo {
			hasVideo = true
		}
		t.mu.Lock()
		t.tracks = append(t.tracks, lt)
		t.mu.Unlock()
	}
	if t.callType == domain.CallVideo && !hasVideo {
		if _, err := t.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) OnRemoteTrack(fn func(domain.TrackInfo)) {
	t.pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		info := domain.TrackInfo{ID: remote.ID(), Kind: kindOf(remote.Kind())}
		log.Debug().Str("kind", string(info.Kind)).Str("track_id", info.ID).Msg("Received remote track")
		fn(info)

		go t.consume(remote)
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			go t.requestKeyframes(remote)
		}
	})
}

// consume reads remote RTP until the track ends. Playback is left to the
// platform; reading keeps the receiver's jitter and NACK state current.
func (t *Transport) consume(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

// requestKeyframes sends a PLI immediately and then periodically until the
// transport closes.
func (t *Transport) requestKeyframes(remote *webrtc.TrackRemote) {
	sendPLI := func() {
		_ = t.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
		})
	}
	sendPLI()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			sendPLI()
		}
	}
}

func (t *Transport) Close() error {
	t.cancel()
	return t.pc.Close()
}

func toDomain(sd webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: sd.Type.String(), SDP: sd.SDP}
}

func fromDomain(sd domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(sd.Type), SDP: sd.SDP}
}

func stateOf(s webrtc.PeerConnectionState) domain.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.TransportClosed
	default:
		return domain.TransportNew
	}
}

func kindOf(k webrtc.RTPCodecType) domain.TrackKind {
	if k == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}
