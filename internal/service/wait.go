package service

import (
	"context"
	"net"
	"time"

	"github.com/aicers/roxy/pkg/reconcile"
)

const waitProbeInterval = time.Second

// WaitReady polls addr with TCP connects at one-second intervals until a
// just-(re)started service accepts connections or the budget runs out.
func WaitReady(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return reconcile.NewError(reconcile.KindTimeout, "%s not ready after %s", addr, timeout)
		case <-time.After(waitProbeInterval):
		}
	}
}
