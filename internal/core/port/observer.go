package port

import "github.com/YinkaFoster/fostertours-sub001/internal/core/domain"

// CallObserver receives UI-facing notifications from the call controller.
// Methods are called from the controller loop and must not block.
type CallObserver interface {
	CallChanged(s domain.CallSession)
	DurationTick(id domain.CallID, seconds int)
	CallError(err error)
	RemoteTrack(id domain.CallID, t domain.TrackInfo)
}
