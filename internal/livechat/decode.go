package livechat

import (
	"encoding/json"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/alexjbarnes/netchat/internal/message"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

// wireMessage is one record of a public chat frame. The server sends no
// ID or timestamp.
type wireMessage struct {
	Message  string `json:"message"`
	Photo    string `json:"photo"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// DecodeBatch parses a raw frame into an ordered batch of messages. The
// frame must be a JSON array; anything else is a DecodeError. Text fields
// are NFC-normalized so a window redelivered with a different Unicode
// form still compares equal to the log.
func DecodeBatch(frame []byte) ([]message.Message, error) {
	if !gjson.ValidBytes(frame) {
		return nil, &apperrors.DecodeError{Reason: "invalid JSON"}
	}

	if !gjson.ParseBytes(frame).IsArray() {
		return nil, &apperrors.DecodeError{Reason: "frame is not a list"}
	}

	var records []wireMessage
	if err := json.Unmarshal(frame, &records); err != nil {
		return nil, &apperrors.DecodeError{Reason: "malformed record", Err: err}
	}

	batch := make([]message.Message, len(records))
	for i, r := range records {
		batch[i] = message.Message{
			SenderID: r.UserID,
			Sender:   norm.NFC.String(r.UserName),
			Body:     norm.NFC.String(r.Message),
			Photo:    r.Photo,
		}
	}

	return batch, nil
}
