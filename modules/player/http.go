package player

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zachfi/radiorelay/pkg/playback"
)

type statusResponse struct {
	Status               playback.Status `json:"status"`
	IsPlaying            bool            `json:"is_playing"`
	ReconnectAttempts    int             `json:"reconnect_attempts"`
	MaxReconnectAttempts int             `json:"max_reconnect_attempts"`
	Attempt              int             `json:"attempt"`
	Message              string          `json:"message"`
}

func newStatusResponse(st playback.State) statusResponse {
	return statusResponse{
		Status:               st.Status,
		IsPlaying:            st.IsPlaying,
		ReconnectAttempts:    st.ReconnectAttempts,
		MaxReconnectAttempts: st.MaxReconnectAttempts,
		Attempt:              st.Attempt(),
		Message:              st.Message(),
	}
}

// RegisterRoutes mounts the status and control endpoints on router.
func (p *Player) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix(p.cfg.RoutePrefix).Subrouter()

	r.Path("/status").Methods(http.MethodGet).HandlerFunc(p.handleStatus)
	r.Path("/play").Methods(http.MethodPost).HandlerFunc(p.control(p.Play))
	r.Path("/pause").Methods(http.MethodPost).HandlerFunc(p.control(p.Pause))
	r.Path("/stop").Methods(http.MethodPost).HandlerFunc(p.control(p.Stop))
}

func (p *Player) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStatusResponse(p.Status()))
}

func (p *Player) control(fn func(context.Context) (playback.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := fn(r.Context())
		code := http.StatusAccepted
		switch {
		case errors.Is(err, ErrNotRunning):
			code = http.StatusServiceUnavailable
		case err != nil:
			code = http.StatusRequestTimeout
		}
		writeJSON(w, code, newStatusResponse(st))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
