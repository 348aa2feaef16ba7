// Package message defines the message entity shared by the live chat and
// direct message packages, plus the helpers both reconcilers build on.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single chat entry. Live chat messages arrive without an ID
// and get one assigned locally; direct messages carry the server's ID.
type Message struct {
	ID          string    `json:"id"`
	SenderID    int64     `json:"sender_id"`
	Sender      string    `json:"sender"`
	RecipientID int64     `json:"recipient_id,omitempty"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
	Photo       string    `json:"photo,omitempty"`
	Viewed      bool      `json:"viewed"`
}

// sameContent reports whether a and b carry the same content. The ID is
// ignored because it is a local annotation for live chat messages.
func sameContent(a, b Message) bool {
	return a.SenderID == b.SenderID &&
		a.Sender == b.Sender &&
		a.RecipientID == b.RecipientID &&
		a.Body == b.Body &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Photo == b.Photo &&
		a.Viewed == b.Viewed
}

// Equal reports whether a and b hold the same messages in the same order,
// compared by content rather than ID.
func Equal(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !sameContent(a[i], b[i]) {
			return false
		}
	}

	return true
}

// AssignIDs returns copies of batch, in order, each with a fresh random ID.
// The input slice is not modified.
func AssignIDs(batch []Message) []Message {
	out := make([]Message, len(batch))
	for i, m := range batch {
		m.ID = uuid.NewString()
		out[i] = m
	}

	return out
}

// IDSet returns the set of IDs present in log.
func IDSet(log []Message) map[string]struct{} {
	ids := make(map[string]struct{}, len(log))
	for _, m := range log {
		ids[m.ID] = struct{}{}
	}

	return ids
}

// Missing returns the items whose ID is not in present, preserving order.
// Items repeated within the batch are kept once.
func Missing(present map[string]struct{}, items []Message) []Message {
	var out []Message

	seen := make(map[string]struct{}, len(items))

	for _, m := range items {
		if _, ok := present[m.ID]; ok {
			continue
		}

		if _, dup := seen[m.ID]; dup {
			continue
		}

		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	return out
}

// Contains reports whether log has a message with the given ID.
func Contains(log []Message, id string) bool {
	for _, m := range log {
		if m.ID == id {
			return true
		}
	}

	return false
}

// TrimOldest keeps at most limit of the most recent entries of log.
func TrimOldest(log []Message, limit int) []Message {
	if len(log) <= limit {
		return log
	}

	return log[len(log)-limit:]
}
