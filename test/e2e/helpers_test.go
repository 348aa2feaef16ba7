package e2e_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/netchat/internal/dialogs"
	"github.com/alexjbarnes/netchat/internal/livechat"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey     = "e2e-api-key"
	reconnectDelay = 50 * time.Millisecond
	waitFor        = 5 * time.Second
	tick           = 10 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// chatRecord is one public chat entry in the server's wire shape.
type chatRecord struct {
	Message  string `json:"message"`
	Photo    string `json:"photo"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// chatServer is a public chat handler that pushes its whole trailing
// window to every client after each post, the way the upstream server
// redelivers overlapping windows instead of deltas.
type chatServer struct {
	t          *testing.T
	windowSize int

	mu       sync.Mutex
	history  []chatRecord
	conns    map[*websocket.Conn]struct{}
	connects int
}

func newChatServer(t *testing.T, windowSize int, seed int) (*chatServer, string) {
	t.Helper()

	s := &chatServer{
		t:          t,
		windowSize: windowSize,
		conns:      make(map[*websocket.Conn]struct{}),
	}

	for i := range seed {
		s.history = append(s.history, chatRecord{
			Message:  "msg " + strconv.Itoa(i),
			UserID:   int64(i%3 + 1),
			UserName: "user" + strconv.Itoa(i%3+1),
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(srv.Close)

	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat"
}

func (s *chatServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.connects++
	s.pushLocked(r.Context(), conn)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		if typ != websocket.MessageText {
			continue
		}

		s.post(r.Context(), chatRecord{Message: string(data), UserID: 99, UserName: "me"})
	}
}

// post appends rec and pushes the new window to every client.
func (s *chatServer) post(ctx context.Context, rec chatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)

	for conn := range s.conns {
		s.pushLocked(ctx, conn)
	}
}

func (s *chatServer) pushLocked(ctx context.Context, conn *websocket.Conn) {
	window := s.history[max(0, len(s.history)-s.windowSize):]

	frame, err := json.Marshal(window)
	if err != nil {
		s.t.Errorf("encoding window: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()

	_ = conn.Write(ctx, websocket.MessageText, frame)
}

// drop closes every connection the way a server restart does.
func (s *chatServer) drop() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "restarting")
	}
}

func (s *chatServer) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connects
}

// startSession joins the chat at url and waits for the first window.
func startSession(t *testing.T, url string, mode livechat.Mode) (*livechat.Channel, *livechat.Session) {
	t.Helper()

	ch := livechat.NewChannel(livechat.ChannelConfig{URL: url, ReconnectDelay: reconnectDelay}, discardLogger())
	sess := livechat.NewSession(ch, livechat.NewReconciler(mode), discardLogger())

	sess.Start(context.Background())
	t.Cleanup(sess.Stop)

	require.Eventually(t, func() bool {
		return sess.Snapshot().CanSend()
	}, waitFor, tick, "session never became ready")

	return ch, sess
}

// waitForLast blocks until the newest message in the live log has body.
func waitForLast(t *testing.T, sess *livechat.Session, body string) livechat.Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		msgs := sess.Snapshot().Messages
		return len(msgs) > 0 && msgs[len(msgs)-1].Body == body
	}, waitFor, tick, "message %q never arrived", body)

	return sess.Snapshot()
}

// restServer is an in-memory dialogs API for one conversation. Pages are
// counted from the newest end, each returned oldest first.
type restServer struct {
	userID int64
	url    string

	mu      sync.Mutex
	history []string
	nextID  int
}

func newRESTServer(t *testing.T, userID int64, seed int) (*restServer, *dialogs.Client) {
	t.Helper()

	s := &restServer{userID: userID}
	for range seed {
		s.addLocked("alice", userID, "note "+strconv.Itoa(s.nextID+1))
	}

	srv := httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(srv.Close)
	s.url = srv.URL

	client := dialogs.NewClient(dialogs.ClientConfig{BaseURL: srv.URL, APIKey: testAPIKey}, discardLogger())

	return s, client
}

func (s *restServer) addLocked(sender string, senderID int64, body string) {
	s.nextID++
	s.history = append(s.history, fmt.Sprintf(
		`{"id":"m%d","body":%q,"addedAt":"2021-03-10T11:%02d:00","senderId":%d,"senderName":%q,"recipientId":1,"viewed":false}`,
		s.nextID, body, s.nextID%60, senderID, sender,
	))
}

func (s *restServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("API-KEY") != testAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	messagesPath := fmt.Sprintf("/dialogs/%d/messages", s.userID)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == messagesPath:
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))

		end := len(s.history) - (page-1)*count
		start := max(0, end-count)
		end = max(0, end)

		_, _ = io.WriteString(w, `{"items":[`+strings.Join(s.history[start:end], ",")+`],"totalCount":`+
			strconv.Itoa(len(s.history))+`,"error":null}`)
	case r.Method == http.MethodPost && r.URL.Path == messagesPath:
		var req struct {
			Body string `json:"body"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.addLocked("me", 1, req.Body)
		_, _ = io.WriteString(w, `{"resultCode":0,"messages":[],"data":{}}`)
	default:
		_, _ = io.WriteString(w, `{"resultCode":0,"messages":[],"data":{}}`)
	}
}
