package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solexec-go/internal/execerr"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsReadWindow       = 30 * time.Second
	wsPingInterval     = 15 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// SignatureWatcher waits for a signature through signatureSubscribe on the
// endpoint's websocket. Each Await holds its own connection.
type SignatureWatcher struct {
	URL    string
	Dialer websocket.Dialer
	log    zerolog.Logger
	reqID  atomic.Uint64
}

// NewSignatureWatcher returns a watcher for url, or nil when url is blank.
func NewSignatureWatcher(url string, log zerolog.Logger) *SignatureWatcher {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &SignatureWatcher{
		URL:    url,
		Dialer: websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
		log:    log.With().Str("ws", url).Logger(),
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// wsMessage covers both the subscribe reply and the notification.
type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err any `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Await returns nil once sig reaches commit, ErrRejected when it lands with
// an error, and a transport error when the socket fails. The node sends one
// notification and drops the subscription, so the connection closes after it.
func (w *SignatureWatcher) Await(ctx context.Context, sig solana.Signature, commit rpc.CommitmentType) error {
	conn, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return execerr.Wrap(execerr.ErrEndpointUnavailable, err).With("ws", w.URL)
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(wsReadWindow))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadWindow))
		return nil
	})

	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	id := w.reqID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "signatureSubscribe",
		Params:  []any{sig.String(), map[string]string{"commitment": string(commit)}},
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return w.fail(ctx, fmt.Errorf("write subscribe: %w", err))
	}

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	pings := make(chan struct{})
	go func() {
		defer close(pings)
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					w.log.Debug().Err(err).Msg("ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	defer func() {
		pingCancel()
		<-pings
	}()

	var subID *uint64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return w.fail(ctx, err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.log.Warn().Err(err).Msg("failed to decode ws message")
			continue
		}
		switch {
		case msg.ID != nil && *msg.ID == id:
			if msg.Error != nil {
				return execerr.ErrEndpointUnavailable.
					With("ws", w.URL).
					With("reason", msg.Error.Message)
			}
			var sub uint64
			if err := json.Unmarshal(msg.Result, &sub); err != nil {
				return execerr.Wrap(execerr.ErrEndpointUnavailable, err).With("ws", w.URL)
			}
			subID = &sub
		case msg.Method == "signatureNotification" && msg.Params != nil:
			if subID != nil && msg.Params.Subscription != *subID {
				continue
			}
			if msg.Params.Result.Value.Err != nil {
				return execerr.ErrRejected.
					With("sig", sig.String()).
					With("err", fmt.Sprint(msg.Params.Result.Value.Err))
			}
			return nil
		}
	}
}

func (w *SignatureWatcher) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return execerr.Wrap(execerr.ErrEndpointUnavailable, err).With("ws", w.URL)
}
