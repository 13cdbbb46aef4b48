package domain

// Event is the envelope of every frame on the real-time channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client -> server
const (
	EventLogin           = "login"
	EventGetChatHistory  = "get_chat_history"
	EventSendMessage     = "send_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventMarkAsRead      = "mark_as_read"
	EventGetUnreadCounts = "get_unread_counts"
)

// server -> client
const (
	EventOnlineUsersUpdate   = "online_users_update"
	EventChatRoomList        = "chat_room_list"
	EventInitialUnreadCounts = "initial_unread_counts"
	EventAllMessagesHistory  = "all_messages_history"
	EventChatHistory         = "chat_history"
	EventReceiveMessage      = "receive_message"
	EventMessageAck          = "message_ack"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventMessagesRead        = "messages_read"
	EventUnreadCountUpdate   = "unread_count_update"
	EventOperationFailed     = "operation_failed"
)

type TypingPayload struct {
	Sender string `json:"sender"`
	RoomID string `json:"roomId"`
}

type MessagesReadPayload struct {
	ReaderUsername string `json:"readerUsername"`
	RoomID         string `json:"roomId"`
}

type UnreadCountPayload struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

type OperationFailedPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
