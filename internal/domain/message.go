package domain

import "time"

type Message struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	RoomID          string    `json:"roomId"`
	Sender          string    `json:"sender"`
	SenderFullName  string    `json:"senderFullName"`
	Body            string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"` // client supplied
	CreatedAt       time.Time `json:"createdAt"` // server clock
	IsRead          bool      `json:"isRead"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
}

// ReadResult describes what a markRead call changed.
type ReadResult struct {
	// Count is the number of messages from others newly covered by the reader.
	Count int
	// Senders are the distinct authors of those messages.
	Senders []string
	// LastReadSeq is the reader's watermark after the call.
	LastReadSeq int64
}
