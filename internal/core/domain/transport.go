package domain

// TransportState mirrors the aggregate peer connection state reported by
// the media transport.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// Lost reports whether the state ends the call.
func (s TransportState) Lost() bool {
	return s == TransportDisconnected || s == TransportFailed
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type TrackInfo struct {
	ID   string
	Kind TrackKind
}

// ConnectionState is a snapshot of the local signaling connection.
type ConnectionState struct {
	UserID           UserID
	Connected        bool
	ReconnectAttempt int
}
