package solana

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsHandshakeTimeout  = 10 * time.Second
	wsWriteTimeout      = 10 * time.Second
	wsReadTimeout       = 60 * time.Second
	wsPingInterval      = 30 * time.Second
	wsMaxReconnectDelay = 30 * time.Second
)

// LogNotification is one logsSubscribe push for a confirmed transaction.
type LogNotification struct {
	Signature string
	Slot      uint64
	Logs      []string
	Err       interface{}
}

type wsSubscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsLogsNotification struct {
	Method string `json:"method"`
	Params *struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Logs      []string    `json:"logs"`
				Err       interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// subscribeLogs streams log notifications mentioning the given address,
// reconnecting with backoff until ctx is done. The returned channel is closed
// on teardown.
func subscribeLogs(ctx context.Context, endpoint, mentions string) <-chan LogNotification {
	out := make(chan LogNotification, 64)
	go func() {
		defer close(out)
		delay := time.Second
		for {
			if err := runLogStream(ctx, endpoint, mentions, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warnf("log stream to %s dropped, reconnecting in %s", endpoint, delay)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
		}
	}()
	return out
}

// runLogStream holds one connection: dial, subscribe, pump notifications
// until the connection or ctx dies.
func runLogStream(ctx context.Context, endpoint, mentions string, out chan<- LogNotification) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				//nolint:all
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsSubscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{mentions}},
			map[string]string{"commitment": "confirmed"},
		},
	}); err != nil {
		return err
	}

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var notif wsLogsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" || notif.Params == nil {
			// Subscription confirmations and keepalives land here.
			continue
		}
		value := notif.Params.Result.Value
		select {
		case out <- LogNotification{
			Signature: value.Signature,
			Slot:      notif.Params.Result.Context.Slot,
			Logs:      value.Logs,
			Err:       value.Err,
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
