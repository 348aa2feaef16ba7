package livechat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/coder/websocket"
)

const (
	// DefaultReconnectDelay is the fixed wait between a close or error
	// and the next connection attempt. There is no backoff.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultURL is the public chat handler.
	DefaultURL = "wss://social-network.samuraijs.com/handlers/ChatHandler.ashx"

	// readLimit caps a single frame. A full window of 100 messages with
	// photo URLs stays far below this.
	readLimit = 1024 * 1024

	// inboundChanSize is the buffer size for the channel carrying frames
	// from the reader goroutine to the event loop.
	inboundChanSize = 16

	// sendChanSize is the buffer size for outbound chat text.
	sendChanSize = 16
)

// Status describes the live channel's connectivity.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusError:
		return "Error"
	default:
		return "Pending..."
	}
}

// State is the lifecycle position of a Channel.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// EventKind names a subscribable event stream.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
)

// Subscription identifies one registered handler. The zero value matches
// nothing, so unsubscribing it is a no-op.
type Subscription struct {
	kind EventKind
	id   uint64
}

// wsConn abstracts the WebSocket connection so Channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// dialFunc opens a connection to url.
type dialFunc func(ctx context.Context, url string) (wsConn, error)

func dialWebsocket(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"User-Agent": []string{"netchat"},
		},
	})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// inboundMsg wraps a frame read by the reader goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// sendOp is outbound chat text submitted to the event loop.
type sendOp struct {
	text   string
	result chan error
}

type messageSub struct {
	id uint64
	fn func([]message.Message)
}

type statusSub struct {
	id uint64
	fn func(Status)
}

// ChannelConfig holds the parameters for a Channel.
type ChannelConfig struct {
	URL            string
	ReconnectDelay time.Duration
}

// Channel owns the single live chat connection. It reports connectivity
// as Status events, delivers decoded batches as message events, and
// reconnects after every close or error, forever, with a fixed delay.
//
// Architecture: a reader goroutine feeds an inbound channel with raw
// frames. One event loop goroutine per Start processes inbound frames
// and outbound sends. All writes happen from the event loop.
type Channel struct {
	logger         *slog.Logger
	url            string
	reconnectDelay time.Duration
	dial           dialFunc

	subsMu    sync.Mutex
	nextSubID uint64
	msgSubs   []messageSub
	statSubs  []statusSub

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// dispatching counts subscriber calls in progress.
	dispatching atomic.Int32

	stateMu sync.RWMutex
	state   State
	status  Status

	sendCh chan sendOp
}

// NewChannel creates a Channel. It does not connect until Start.
func NewChannel(cfg ChannelConfig, logger *slog.Logger) *Channel {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	return &Channel{
		logger:         logger,
		url:            url,
		reconnectDelay: delay,
		dial:           dialWebsocket,
		status:         StatusPending,
		sendCh:         make(chan sendOp, sendChanSize),
	}
}

// SubscribeMessages registers fn for decoded message batches.
func (c *Channel) SubscribeMessages(fn func([]message.Message)) Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSubID++
	c.msgSubs = append(c.msgSubs, messageSub{id: c.nextSubID, fn: fn})

	return Subscription{kind: EventMessage, id: c.nextSubID}
}

// SubscribeStatus registers fn for status changes.
func (c *Channel) SubscribeStatus(fn func(Status)) Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSubID++
	c.statSubs = append(c.statSubs, statusSub{id: c.nextSubID, fn: fn})

	return Subscription{kind: EventStatus, id: c.nextSubID}
}

// Unsubscribe removes the handler behind sub. Other handlers are not
// affected. Unknown or already removed subscriptions are ignored.
func (c *Channel) Unsubscribe(sub Subscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	switch sub.kind {
	case EventMessage:
		for i, s := range c.msgSubs {
			if s.id == sub.id {
				c.msgSubs = append(c.msgSubs[:i:i], c.msgSubs[i+1:]...)
				return
			}
		}
	case EventStatus:
		for i, s := range c.statSubs {
			if s.id == sub.id {
				c.statSubs = append(c.statSubs[:i:i], c.statSubs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns how many handlers are registered for kind.
func (c *Channel) Subscribers(kind EventKind) int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	switch kind {
	case EventMessage:
		return len(c.msgSubs)
	case EventStatus:
		return len(c.statSubs)
	default:
		return 0
	}
}

// Start opens the connection and keeps it open until Stop or until ctx
// is cancelled. Calling Start while running tears the current connection
// down first, so at most one connection exists at a time.
//
// Subscribers may call Start or Stop. The loop delivering that event
// cannot be waited for from inside it, so the old connection is
// cancelled and closes on its own once the subscriber returns.
func (c *Channel) Start(ctx context.Context) {
	if !c.lockLifecycle() {
		return
	}
	defer c.lifeMu.Unlock()

	c.shutdown()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	c.setState(StateConnecting)

	go func() {
		defer close(done)
		c.run(runCtx)
	}()
}

// Stop removes every subscriber, closes the connection, and waits for
// the event loop to exit. The channel stays closed until Start. Called
// while a subscriber runs, Stop cancels the loop without waiting.
func (c *Channel) Stop() {
	c.subsMu.Lock()
	c.msgSubs = nil
	c.statSubs = nil
	c.subsMu.Unlock()

	if !c.lockLifecycle() {
		return
	}
	defer c.lifeMu.Unlock()

	c.shutdown()
}

// lockLifecycle takes lifeMu. While subscribers are being called it only
// tries: a holder may be waiting for the very loop that is calling, and
// that holder is already tearing the loop down.
func (c *Channel) lockLifecycle() bool {
	if c.dispatching.Load() == 0 {
		c.lifeMu.Lock()
		return true
	}

	return c.lifeMu.TryLock()
}

// shutdown cancels the running loop and waits for it, unless a
// subscriber is running on it. Caller holds lifeMu.
func (c *Channel) shutdown() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	if c.dispatching.Load() == 0 {
		<-c.done
	}

	c.cancel = nil
	c.done = nil
	c.setState(StateClosed)

	// Fail sends queued against the dead connection.
	for {
		select {
		case op := <-c.sendCh:
			op.result <- apperrors.ErrNotReady
		default:
			return
		}
	}
}

// State returns the lifecycle state.
func (c *Channel) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return c.state
}

// Status returns the last reported status.
func (c *Channel) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return c.status
}

// Send writes text to the open connection. It fails with ErrNotReady when
// the channel is not open.
func (c *Channel) Send(ctx context.Context, text string) error {
	if c.State() != StateOpen {
		return apperrors.ErrNotReady
	}

	op := sendOp{text: text, result: make(chan error, 1)}

	select {
	case c.sendCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the reconnect loop. Every pass dials, serves the connection until
// it drops, reports, and waits the fixed delay.
func (c *Channel) run(ctx context.Context) {
	for {
		c.notifyStatus(ctx, StatusPending)
		c.advance(ctx, StateConnecting)

		err := c.serve(ctx)
		if ctx.Err() != nil {
			return
		}

		var terr *apperrors.TransportError
		if errors.As(err, &terr) {
			c.logger.Warn("live channel error, refresh if this persists",
				slog.String("error", err.Error()),
			)
			c.notifyStatus(ctx, StatusError)
		}

		c.advance(ctx, StateConnecting)
		c.notifyStatus(ctx, StatusPending)
		c.logger.Warn("live channel closed, reconnecting",
			slog.Duration("delay", c.reconnectDelay),
		)

		timer := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve dials and runs the event loop for one connection. A clean close
// by the server returns nil; dial, read, and write failures return a
// TransportError.
func (c *Channel) serve(ctx context.Context) error {
	c.logger.Debug("connecting", slog.String("url", c.url))

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return &apperrors.TransportError{Op: "dialing live channel", Err: err}
	}

	conn.SetReadLimit(readLimit)

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	inbound := c.startReader(connCtx, conn)

	c.advance(ctx, StateOpen)
	c.notifyStatus(ctx, StatusReady)
	c.logger.Info("live channel ready")

	err = c.eventLoop(ctx, conn, inbound)
	c.advance(ctx, StateConnecting)

	if ctx.Err() != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
		return ctx.Err()
	}

	conn.Close(websocket.StatusGoingAway, "reconnecting")

	return err
}

// startReader launches a goroutine that reads frames from conn. The read
// error is delivered as the final message. The channel is created per
// connection so a stale reader cannot feed a newer connection.
func (c *Channel) startReader(connCtx context.Context, conn wsConn) <-chan inboundMsg {
	ch := make(chan inboundMsg, inboundChanSize)

	go func() {
		for {
			typ, data, err := conn.Read(connCtx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()

	return ch
}

// eventLoop processes inbound frames and outbound sends for one
// connection.
func (c *Channel) eventLoop(ctx context.Context, conn wsConn, inbound <-chan inboundMsg) error {
	for {
		select {
		case msg := <-inbound:
			if msg.err != nil {
				if status := websocket.CloseStatus(msg.err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
					c.logger.Info("live channel closed by server", slog.Int("code", int(status)))
					return nil
				}

				return &apperrors.TransportError{Op: "reading frame", Err: msg.err}
			}

			if msg.typ != websocket.MessageText {
				c.logger.Debug("unexpected binary frame", slog.Int("bytes", len(msg.data)))
				continue
			}

			c.handleFrame(ctx, msg.data)

		case op := <-c.sendCh:
			if err := conn.Write(ctx, websocket.MessageText, []byte(op.text)); err != nil {
				terr := &apperrors.TransportError{Op: "writing frame", Err: err}
				op.result <- terr

				return terr
			}

			op.result <- nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) handleFrame(ctx context.Context, data []byte) {
	batch, err := DecodeBatch(data)
	if err != nil {
		c.logger.Warn("discarding frame",
			slog.Int("bytes", len(data)),
			slog.String("error", err.Error()),
		)

		return
	}

	c.subsMu.Lock()
	subs := append([]messageSub(nil), c.msgSubs...)
	c.subsMu.Unlock()

	c.dispatching.Add(1)
	defer c.dispatching.Add(-1)

	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}

		s.fn(batch)
	}
}

// notifyStatus records st and tells every status subscriber. A cancelled
// loop reports nothing, so a restarted channel only hears its current one.
func (c *Channel) notifyStatus(ctx context.Context, st Status) {
	c.stateMu.Lock()
	if ctx.Err() != nil {
		c.stateMu.Unlock()
		return
	}
	c.status = st
	c.stateMu.Unlock()

	c.logger.Info("live channel status", slog.String("status", st.String()))

	c.subsMu.Lock()
	subs := append([]statusSub(nil), c.statSubs...)
	c.subsMu.Unlock()

	c.dispatching.Add(1)
	defer c.dispatching.Add(-1)

	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}

		s.fn(st)
	}
}

func (c *Channel) setState(st State) {
	c.stateMu.Lock()
	c.state = st
	c.stateMu.Unlock()
}

// advance sets the state on behalf of the loop owning ctx. Once that loop
// is cancelled, the lifecycle methods own the state.
func (c *Channel) advance(ctx context.Context, st State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if ctx.Err() == nil {
		c.state = st
	}
}
