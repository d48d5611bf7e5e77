package channel

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/aicers/roxy/pkg/reconcile"
)

// Client is the manager side of the channel. A client holds one session
// and serializes exchanges on it.
type Client struct {
	mu   sync.Mutex
	conn *tls.Conn
}

type ClientConfig struct {
	Addr   string
	Cert   string
	Key    string
	CACert string
	// ServerName overrides the name verified against the server
	// certificate; defaults to the host part of Addr.
	ServerName string
}

func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	tlsCfg, err := clientTLSConfig(cfg.Cert, cfg.Key, cfg.CACert, cfg.ServerName)
	if err != nil {
		return nil, err
	}

	dialer := &tls.Dialer{Config: tlsCfg}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, reconcile.WrapError(reconcile.KindTransportAuthFailed, err,
			"connect to %s", cfg.Addr)
	}
	return &Client{conn: conn.(*tls.Conn)}, nil
}

// Do sends one request and waits for its result. The result ID must
// match the request ID; a mismatch means the session is out of sync and
// the caller should close the client.
func (c *Client) Do(ctx context.Context, req reconcile.Request) (reconcile.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Minute)
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := writeFrame(c.conn, req); err != nil {
		return reconcile.Result{}, err
	}

	var res reconcile.Result
	if err := readFrame(c.conn, &res); err != nil {
		return reconcile.Result{}, err
	}
	if res.ID != req.ID {
		return reconcile.Result{}, reconcile.NewError(reconcile.KindExecutionFailed,
			"result id %q does not match request id %q", res.ID, req.ID)
	}
	return res, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
