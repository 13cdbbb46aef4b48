package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// inbound is a client frame; the payload is decoded per event type.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type loginPayload struct {
	Username string `json:"username" validate:"required,max=64"`
}

// Room payloads accept both roomId and the older chatRoomId field.

type historyPayload struct {
	RoomID     string `json:"roomId" validate:"required_without=ChatRoomID,max=64"`
	ChatRoomID string `json:"chatRoomId" validate:"max=64"`
}

type sendPayload struct {
	Sender          string     `json:"sender" validate:"max=64"`
	SenderFullName  string     `json:"senderFullName" validate:"max=128"`
	Message         string     `json:"message"`
	RoomID          string     `json:"roomId" validate:"max=64"`
	ChatRoomID      string     `json:"chatRoomId" validate:"max=64"`
	Timestamp       clientTime `json:"timestamp"`
	ClientMessageID string     `json:"clientMessageId" validate:"max=64"`
}

type typingPayload struct {
	Sender     string `json:"sender" validate:"max=64"`
	RoomID     string `json:"roomId" validate:"required_without=ChatRoomID,max=64"`
	ChatRoomID string `json:"chatRoomId" validate:"max=64"`
}

type markReadPayload struct {
	ReaderUsername string `json:"readerUsername" validate:"max=64"`
	SenderUsername string `json:"senderUsername" validate:"max=64"`
	RoomID         string `json:"roomId" validate:"required_without=ChatRoomID,max=64"`
	ChatRoomID     string `json:"chatRoomId" validate:"max=64"`
}

func pickRoom(roomID, chatRoomID string) string {
	if roomID != "" {
		return roomID
	}
	return chatRoomID
}

// clientTime is an RFC 3339 string or epoch milliseconds.
type clientTime time.Time

func (t *clientTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		*t = clientTime(time.UnixMilli(ms))
		return nil
	}
	var ts time.Time
	if err := ts.UnmarshalJSON(b); err != nil {
		return err
	}
	*t = clientTime(ts)
	return nil
}

// decode unmarshals raw into dst and validates it.
func decode(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// decodeLogin accepts a bare username string or {"username": "..."}.
func decodeLogin(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		p := loginPayload{Username: name}
		if err := validate.Struct(p); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return name, nil
	}
	var p loginPayload
	if err := decode(raw, &p); err != nil {
		return "", err
	}
	return p.Username, nil
}

func decodeFrame(data []byte, in *inbound) error {
	if err := json.Unmarshal(data, in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if in.Type == "" {
		return fmt.Errorf("%w: missing type", domain.ErrInvalidInput)
	}
	return nil
}
