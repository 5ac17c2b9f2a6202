package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// HTTPServer wires the websocket endpoint to the lobby registry.
type HTTPServer struct {
	reg      *Registry
	upgrader websocket.Upgrader
}

func NewHTTPServer(reg *Registry) *HTTPServer {
	return &HTTPServer{
		reg: reg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrade websocket")
		return
	}
	client := NewClient(conn, s.reg)
	go client.writeLoop()
	client.readLoop()
}
