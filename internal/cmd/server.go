package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/quizwire/quizwire/internal/quiz/gateway"
)

func setupServer(cfg *Config, gw *gateway.Gateway) *http.Server {
	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)

	// Setup CORS middleware; the relay serves browser clients from
	// arbitrary origins, as the quiz frontends are hosted separately.
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
