package livechat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/message"
)

// liveChannel is the part of *Channel a Session drives.
type liveChannel interface {
	Start(ctx context.Context)
	Stop()
	Send(ctx context.Context, text string) error
	SubscribeMessages(fn func([]message.Message)) Subscription
	SubscribeStatus(fn func(Status)) Subscription
	Unsubscribe(sub Subscription)
}

// Snapshot is an immutable view of the public chat for presentation.
type Snapshot struct {
	Messages []message.Message
	Status   Status
	// Received is set once a batch arrives after the latest status change.
	Received bool
}

// CanSend reports whether outgoing messages are allowed.
func (s Snapshot) CanSend() bool {
	return s.Status == StatusReady && s.Received
}

// Session binds a Channel to a Reconciler and holds the public chat log
// for one visit to the chat. The handlers passed to the channel are built
// once in NewSession so the same values are subscribed and unsubscribed.
type Session struct {
	channel    liveChannel
	reconciler *Reconciler
	logger     *slog.Logger

	onMessages func([]message.Message)
	onStatus   func(Status)

	mu       sync.Mutex
	log      []message.Message
	status   Status
	received bool
	subs     []Subscription

	updates chan struct{}
}

// NewSession creates a Session. Nothing is connected until Start.
func NewSession(channel liveChannel, reconciler *Reconciler, logger *slog.Logger) *Session {
	s := &Session{
		channel:    channel,
		reconciler: reconciler,
		logger:     logger,
		status:     StatusPending,
		updates:    make(chan struct{}, 1),
	}
	s.onMessages = s.handleMessages
	s.onStatus = s.handleStatus

	return s
}

// Start connects the channel and subscribes the session's handlers.
// Starting a running session replaces its subscriptions, so each batch is
// still reconciled once.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	for _, sub := range s.subs {
		s.channel.Unsubscribe(sub)
	}

	s.subs = []Subscription{
		s.channel.SubscribeMessages(s.onMessages),
		s.channel.SubscribeStatus(s.onStatus),
	}
	s.mu.Unlock()

	s.channel.Start(ctx)
}

// Stop disconnects, unsubscribes, and discards the log.
func (s *Session) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.channel.Stop()

	for _, sub := range subs {
		s.channel.Unsubscribe(sub)
	}

	s.mu.Lock()
	s.log = nil
	s.status = StatusPending
	s.received = false
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{Messages: s.log, Status: s.status, Received: s.received}
}

// Updates signals after every change to the snapshot. Signals coalesce,
// so a slow reader sees the latest state rather than every step.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Send posts text to the public chat. Blank text is rejected and sending
// is refused until the channel is ready and has delivered messages.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.ErrEmptyMessage
	}

	if !s.Snapshot().CanSend() {
		return apperrors.ErrNotReady
	}

	return s.channel.Send(ctx, text)
}

func (s *Session) handleMessages(batch []message.Message) {
	s.mu.Lock()
	next, changed := s.reconciler.Reconcile(s.log, batch)
	wasReceived := s.received
	s.log = next
	s.received = true
	size := len(next)
	s.mu.Unlock()

	if !changed && wasReceived {
		return
	}

	s.logger.Debug("chat log updated",
		slog.Int("batch", len(batch)),
		slog.Int("log", size),
	)
	s.notify()
}

func (s *Session) handleStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.received = false
	s.mu.Unlock()

	s.notify()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
