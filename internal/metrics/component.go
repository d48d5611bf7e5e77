// Package metrics exposes broker counters over a prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aicers/roxy/pkg/component"
	"github.com/aicers/roxy/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Component struct {
	*component.Base
	logger *slog.Logger
	addr   string
	server *http.Server
}

func New(addr string) *Component {
	return &Component{
		Base:   component.NewBase("metrics"),
		logger: logger.Component(logger.Metrics),
		addr:   addr,
	}
}

func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)
	c.logger.Info("Starting metrics endpoint", "addr", c.addr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	c.server = &http.Server{Addr: c.addr, Handler: mux}

	c.Go(func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", "error", err)
		}
	})

	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.logger.Info("Stopping metrics endpoint")

	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.server.Shutdown(shutdownCtx)
	}

	c.StopContext()
	return nil
}
