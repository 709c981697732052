package gateway

import (
	"fmt"
	"net/http"
)

// RegisterRoutes registers the WebSocket endpoint and service
// endpoints with an HTTP mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.HandleWS)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/info", g.handleInfo)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"service":"quizwire","connections":%d}`, g.ConnectionCount())
}
