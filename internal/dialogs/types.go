package dialogs

import (
	"fmt"
	"time"

	"github.com/alexjbarnes/netchat/internal/message"
	"golang.org/x/text/unicode/norm"
)

// Dialog is one entry of the conversation list.
type Dialog struct {
	ID               int64     `json:"id"`
	UserName         string    `json:"userName"`
	HasNewMessages   bool      `json:"hasNewMessages"`
	NewMessagesCount int       `json:"newMessagesCount"`
	LastActivity     time.Time `json:"-"`
	Photo            string    `json:"-"`
}

// wireDialog is the server shape of a Dialog.
type wireDialog struct {
	ID                     int64  `json:"id"`
	UserName               string `json:"userName"`
	HasNewMessages         bool   `json:"hasNewMessages"`
	NewMessagesCount       int    `json:"newMessagesCount"`
	LastDialogActivityDate string `json:"lastDialogActivityDate"`
	Photos                 struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"photos"`
}

func (w wireDialog) toDialog() Dialog {
	d := Dialog{
		ID:               w.ID,
		UserName:         norm.NFC.String(w.UserName),
		HasNewMessages:   w.HasNewMessages,
		NewMessagesCount: w.NewMessagesCount,
		Photo:            w.Photos.Small,
	}

	if t, err := parseTimestamp(w.LastDialogActivityDate); err == nil {
		d.LastActivity = t
	}

	return d
}

// wireMessage is the server shape of a direct message. Ids are strings
// issued by the server and stable across fetches.
type wireMessage struct {
	ID          string `json:"id"`
	Body        string `json:"body"`
	AddedAt     string `json:"addedAt"`
	SenderID    int64  `json:"senderId"`
	SenderName  string `json:"senderName"`
	RecipientID int64  `json:"recipientId"`
	Viewed      bool   `json:"viewed"`
}

func (w wireMessage) toMessage() (message.Message, error) {
	if w.ID == "" {
		return message.Message{}, fmt.Errorf("message without id from sender %d", w.SenderID)
	}

	ts, err := parseTimestamp(w.AddedAt)
	if err != nil {
		return message.Message{}, fmt.Errorf("message %s: %w", w.ID, err)
	}

	return message.Message{
		ID:          w.ID,
		SenderID:    w.SenderID,
		Sender:      norm.NFC.String(w.SenderName),
		RecipientID: w.RecipientID,
		Body:        norm.NFC.String(w.Body),
		Timestamp:   ts,
		Viewed:      w.Viewed,
	}, nil
}

// timestampLayouts are the formats the API has been seen to emit. The
// server omits the zone; such values are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
