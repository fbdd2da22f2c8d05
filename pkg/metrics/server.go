package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route mounts an extra handler next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// StartServer serves g on /metrics at port in the background and returns
// the server's Shutdown func. A nil g serves the default gatherer.
func StartServer(port int, g prometheus.Gatherer, routes ...Route) (shutdown func(context.Context) error, err error) {
	handler := Handler()
	if g != nil {
		handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", server.Addr, err)
	}

	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown, nil
}
