package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/gateway/ws"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(h.Origins, "*") {
				return true
			}
			return slices.Contains(h.Origins, origin)
		},
	}
}

// ServeWS upgrades an authenticated user onto their signaling channel. The
// token subject must match the user id in the path.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(chi.URLParam(r, "userID"))
	if userID == "" {
		writeError(w, fmt.Errorf("%w: missing user id", domain.ErrBadRequest))
		return
	}
	subject, err := h.Auth.Verify(bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if subject != userID {
		writeError(w, fmt.Errorf("%w: token does not belong to %s", domain.ErrForbidden, userID))
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	l := log.With().Str("user_id", userID.String()).Logger()
	l.Info().Msg("Signaling client connected")

	client := ws.NewClient(h.Hub, conn, userID)
	h.Hub.Register(client)
	go client.WritePump()

	// The request context ends with the handler, so relaying runs on its own.
	ctx := context.WithoutCancel(r.Context())
	client.ReadPump(func(data []byte) {
		if err := h.Relay.Relay(ctx, userID, data); err != nil {
			if errors.Is(err, domain.ErrBadRequest) {
				l.Warn().Err(err).Msg("Dropped malformed signaling frame")
				return
			}
			l.Error().Err(err).Msg("Failed to relay signaling frame")
		}
	})
	l.Info().Msg("Signaling client disconnected")
}
