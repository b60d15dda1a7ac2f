package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/status"
	"go.uber.org/zap"
)

// errUnauthorized stops the reconnect loop: retrying with the same token
// cannot succeed.
var errUnauthorized = errors.New("push channel rejected credentials")

// Subscribe opens the owner's push channel. The connection is re-established
// with capped exponential backoff until cancel is called or ctx is done;
// events missed while disconnected are not replayed.
func (c *Client) Subscribe(ctx context.Context, s provider.Session) (<-chan provider.RawEvent, func(), error) {
	if !s.Valid() {
		return nil, nil, fmt.Errorf("subscribe: missing owner id")
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan provider.RawEvent, 64)

	go func() {
		defer close(out)
		c.pushLoop(ctx, s, out)
	}()
	return out, cancel, nil
}

func (c *Client) pushLoop(ctx context.Context, s provider.Session, out chan<- provider.RawEvent) {
	backoff := c.minBackoff
	for {
		c.moveTo(status.Connecting)
		conn, err := c.dial(ctx, s)
		if err == nil {
			c.metrics.PushConnect("ok")
			c.moveTo(status.Syncing, status.Ready)
			backoff = c.minBackoff
			err = c.readLoop(ctx, conn, out)
		} else {
			c.metrics.PushConnect("error")
		}

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errUnauthorized) {
			c.logger.Error("push channel unauthorized", zap.String("owner", s.OwnerID))
			c.moveTo(status.AuthRequired)
			return
		}

		c.moveTo(status.Reconnecting)
		wait := jitter(backoff)
		c.logger.Warn("push channel disconnected, reconnecting",
			zap.String("owner", s.OwnerID), zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Client) dial(ctx context.Context, s provider.Session) (*websocket.Conn, error) {
	u := c.push.JoinPath("owners", url.PathEscape(s.OwnerID), "events")
	header := http.Header{}
	if s.Token != "" {
		header.Set("Authorization", "Bearer "+s.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errUnauthorized
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	return conn, nil
}

// readLoop forwards frames until the connection fails or ctx is done.
// Frames that are not JSON are skipped; validation happens in the bridge.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- provider.RawEvent) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var raw provider.RawEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			c.logger.Warn("skipping malformed push frame", zap.Error(err))
			continue
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// moveTo walks the machine through path, ignoring steps it cannot take.
func (c *Client) moveTo(path ...status.State) {
	if c.machine == nil {
		return
	}
	if err := c.machine.Walk(path...); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}

// jitter spreads d by up to half of itself.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int64N(int64(d/2)+1))
}
