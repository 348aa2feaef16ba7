package dialogs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/message"
)

// DefaultPageSize is the number of messages fetched per page.
const DefaultPageSize = 10

// Transport is the part of the REST API a Conversation needs. *Client
// implements it.
type Transport interface {
	Messages(ctx context.Context, userID int64, page, count int) ([]message.Message, error)
	SendMessage(ctx context.Context, userID int64, body string) error
	RemoveMessage(ctx context.Context, messageID string) error
	RestoreMessage(ctx context.Context, messageID string) error
}

// State is the load state of a Conversation.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of a Conversation for presentation.
// Messages is nil until the first page arrives.
type Snapshot struct {
	UserID   int64
	Messages []message.Message
	Removed  RemovedSet
	State    State
	Page     int
	PageSize int
	HasNext  bool
	Loading  bool
}

// Conversation drives the history of one direct message conversation for
// one visit. Requests run without holding the lock; their results are
// merged only if the conversation has not been closed in the meantime.
//
// Callers sequence operations on the same conversation: a page load and a
// send racing each other both merge into whichever log they find.
type Conversation struct {
	transport Transport
	logger    *slog.Logger
	userID    int64
	pageSize  int

	mu       sync.Mutex
	gen      uint64
	state    State
	log      []message.Message
	removed  RemovedSet
	page     int
	hasNext  bool
	inflight int
}

// NewConversation creates a Conversation with userID. Nothing is fetched
// until Open.
func NewConversation(transport Transport, userID int64, pageSize int, logger *slog.Logger) *Conversation {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Conversation{
		transport: transport,
		logger:    logger.With(slog.Int64("user_id", userID)),
		userID:    userID,
		pageSize:  pageSize,
		page:      1,
	}
}

// Snapshot returns the current state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UserID:   c.userID,
		Messages: c.log,
		Removed:  c.removed,
		State:    c.state,
		Page:     c.page,
		PageSize: c.pageSize,
		HasNext:  c.hasNext,
		Loading:  c.inflight > 0,
	}
}

// Loading reports whether any request is in flight.
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inflight > 0
}

// begin marks a request in flight and returns the generation it belongs to.
func (c *Conversation) begin(loading bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight++

	if loading && c.state == StateUninitialized {
		c.state = StateLoading
	}

	return c.gen
}

// end finishes a request started by begin. It must be called with the
// lock held.
func (c *Conversation) end() {
	c.inflight--

	if c.state == StateLoading && c.inflight == 0 {
		if c.log == nil {
			c.state = StateUninitialized
		} else {
			c.state = StateLoaded
		}
	}
}

// stale reports whether gen was closed. It must be called with the lock
// held.
func (c *Conversation) stale(gen uint64, op string) bool {
	if gen == c.gen {
		return false
	}

	c.logger.Debug("discarding stale response", slog.String("op", op))

	return true
}

// Open loads page 1 and probes page 2 for older history. On a
// conversation that is already loaded it refreshes instead, so newer
// messages are appended rather than merged in as older history.
func (c *Conversation) Open(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.log != nil
	c.mu.Unlock()

	if loaded {
		return c.Refresh(ctx)
	}

	if err := c.loadPage(ctx, 1); err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	return nil
}

// Refresh fetches the newest page and appends the messages the log does
// not have yet. The page cursor and older history are left as they are.
func (c *Conversation) Refresh(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.log != nil
	c.mu.Unlock()

	if !loaded {
		return c.Open(ctx)
	}

	if err := c.receiveNewest(ctx, c.begin(false)); err != nil {
		return fmt.Errorf("refreshing conversation: %w", err)
	}

	return nil
}

// LoadOlder fetches the next page of older history. It fails with
// ErrNoMorePages unless the last probe found more.
func (c *Conversation) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	hasNext, next := c.hasNext, c.page+1
	c.mu.Unlock()

	if !hasNext {
		return apperrors.ErrNoMorePages
	}

	if err := c.loadPage(ctx, next); err != nil {
		return fmt.Errorf("loading older messages: %w", err)
	}

	return nil
}

func (c *Conversation) loadPage(ctx context.Context, page int) error {
	gen := c.begin(true)

	items, err := c.transport.Messages(ctx, c.userID, page, c.pageSize)

	c.mu.Lock()
	if c.stale(gen, "load page") {
		c.end()
		c.mu.Unlock()

		return apperrors.ErrConversationClosed
	}

	if err != nil {
		c.end()
		c.mu.Unlock()

		return err
	}

	c.log = LoadPage(c.log, items)
	c.page = page
	c.state = StateLoaded
	c.end()
	c.mu.Unlock()

	c.logger.Debug("page loaded", slog.Int("page", page), slog.Int("items", len(items)))

	// The page is already merged, so a failed probe only leaves hasNext
	// as it was.
	err = c.probe(ctx, page+1)
	if errors.Is(err, apperrors.ErrConversationClosed) {
		return err
	}

	if err != nil {
		c.logger.Warn("probing for older messages failed", slog.String("error", err.Error()))
	}

	return nil
}

// probe checks whether page exists and records the result as hasNext.
func (c *Conversation) probe(ctx context.Context, page int) error {
	gen := c.begin(false)

	items, err := c.transport.Messages(ctx, c.userID, page, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if c.stale(gen, "probe page") {
		return apperrors.ErrConversationClosed
	}

	if err != nil {
		return fmt.Errorf("probing page %d: %w", page, err)
	}

	c.hasNext = ProbeNextPage(items)

	return nil
}

// Send posts body and then merges the newest page so the sent message
// shows up with its server id.
func (c *Conversation) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return apperrors.ErrEmptyMessage
	}

	gen := c.begin(false)

	if err := c.transport.SendMessage(ctx, c.userID, body); err != nil {
		c.finish()
		return fmt.Errorf("sending message: %w", err)
	}

	return c.receiveNewest(ctx, gen)
}

// receiveNewest fetches page 1 and appends what the log is missing. The
// request was started by begin, which returned gen.
func (c *Conversation) receiveNewest(ctx context.Context, gen uint64) error {
	items, err := c.transport.Messages(ctx, c.userID, 1, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if c.stale(gen, "receive new") {
		return apperrors.ErrConversationClosed
	}

	if err != nil {
		return fmt.Errorf("fetching new messages: %w", err)
	}

	c.log = ReceiveNew(c.log, items)
	if c.state == StateUninitialized {
		c.state = StateLoaded
	}

	return nil
}

// Delete removes id on the server and marks it pending delete locally.
// The message stays in the log until ConfirmRemove.
func (c *Conversation) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	known := message.Contains(c.log, id)
	c.mu.Unlock()

	if !known {
		return fmt.Errorf("deleting %s: %w", id, apperrors.ErrUnknownMessage)
	}

	gen := c.begin(false)
	err := c.transport.RemoveMessage(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if c.stale(gen, "delete") {
		return apperrors.ErrConversationClosed
	}

	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	if message.Contains(c.log, id) {
		c.removed = MarkPendingDelete(c.removed, id)
	}

	return nil
}

// Restore undoes the server side delete of id. Every pending delete is
// cleared, matching what the server list shows after a restore.
func (c *Conversation) Restore(ctx context.Context, id string) error {
	gen := c.begin(false)
	err := c.transport.RestoreMessage(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.end()

	if c.stale(gen, "restore") {
		return apperrors.ErrConversationClosed
	}

	if err != nil {
		return fmt.Errorf("restoring message: %w", err)
	}

	c.removed = Restore(c.removed)

	return nil
}

// ConfirmRemove drops id from the local log. No request is made: the
// server already deleted it in Delete.
func (c *Conversation) ConfirmRemove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log, c.removed = ConfirmRemove(c.log, c.removed, id)
}

// Close discards the log and removed set and invalidates every request
// still in flight.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.log = Clear()
	c.removed = RemovedSet{}
	c.state = StateUninitialized
	c.page = 1
	c.hasNext = false
}

func (c *Conversation) finish() {
	c.mu.Lock()
	c.end()
	c.mu.Unlock()
}
