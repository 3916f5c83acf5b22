// Package wire defines the JSON messages exchanged with the chat backend,
// both over the websocket event channel and in pull API responses.
package wire

// User is a member of the user directory.
type User struct {
	ID     int32  `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// LastMessage is the last-message summary carried by conversation snapshots.
type LastMessage struct {
	Content  string `json:"content,omitempty"`
	SentAt   int64  `json:"sent_at,omitempty"` // unix millis
	SenderID int32  `json:"sender_id,omitempty"`
}

// Conversation is a snapshot of one two-party conversation as returned by
// `GET conversations`. Snapshots never carry typing state.
type Conversation struct {
	ID          int64        `json:"id,omitempty"`
	Peer        User         `json:"peer,omitempty"`
	Online      bool         `json:"online,omitempty"`
	LastSeen    int64        `json:"last_seen,omitempty"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int32        `json:"unread_count,omitempty"`
}

// Message is one message as returned by `GET conversations/{id}/messages`.
type Message struct {
	ID             int64  `json:"id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	SenderID       int32  `json:"sender_id,omitempty"`
	Content        string `json:"content,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`
	Delivered      bool   `json:"delivered,omitempty"`
	Read           bool   `json:"read,omitempty"`
	DeliveredAt    int64  `json:"delivered_at,omitempty"`
	ReadAt         int64  `json:"read_at,omitempty"`
}

// NewMessage is the `message:new` event. LocalID is echoed back on the
// sender's own messages so the client can match its optimistic copy.
type NewMessage struct {
	ID             int64  `json:"id,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	SenderID       int32  `json:"sender_id,omitempty"`
	Content        string `json:"content,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`
}

// MessageDelivered is the `message:delivered` event.
type MessageDelivered struct {
	MessageID      int64 `json:"message_id,omitempty"`
	ConversationID int64 `json:"conversation_id,omitempty"`
	DeliveredAt    int64 `json:"delivered_at,omitempty"`
}

// MessageRead is the `message:read` event. UserID is the reader.
type MessageRead struct {
	ConversationID int64   `json:"conversation_id,omitempty"`
	UserID         int32   `json:"user_id,omitempty"`
	MessageIDs     []int64 `json:"message_ids,omitempty"`
	ReadAt         int64   `json:"read_at,omitempty"`
}

// Typing is a room-scoped `typing:start` / `typing:stop` event.
type Typing struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
	UserID         int32 `json:"user_id,omitempty"`
}

// UserStatus is the `user_status_change` presence broadcast.
type UserStatus struct {
	UserID   int32 `json:"user_id,omitempty"`
	Online   bool  `json:"online,omitempty"`
	LastSeen int64 `json:"last_seen,omitempty"`
}

// UserTyping is the global `user_typing_status` broadcast, consumed by the
// conversation list without being inside the room.
type UserTyping struct {
	UserID   int32  `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// ConversationsUpdated hints that the conversation list changed server-side.
type ConversationsUpdated struct{}

// ConversationOpened is the custom `conversation_opened` event/command.
type ConversationOpened struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
	UserID         int32 `json:"user_id,omitempty"`
}

// Authenticated acknowledges an authenticate command.
type Authenticated struct {
	UserID int32 `json:"user_id,omitempty"`
}

// AuthError rejects an authenticate command.
type AuthError struct {
	Reason string `json:"reason,omitempty"`
}

// ServerMsg is one inbound websocket frame. Exactly one field is set.
type ServerMsg struct {
	Authenticated        *Authenticated        `json:"authenticated,omitempty"`
	AuthError            *AuthError            `json:"auth_error,omitempty"`
	NewMessage           *NewMessage           `json:"message_new,omitempty"`
	MessageDelivered     *MessageDelivered     `json:"message_delivered,omitempty"`
	MessageRead          *MessageRead          `json:"message_read,omitempty"`
	TypingStart          *Typing               `json:"typing_start,omitempty"`
	TypingStop           *Typing               `json:"typing_stop,omitempty"`
	UserStatus           *UserStatus           `json:"user_status_change,omitempty"`
	UserTyping           *UserTyping           `json:"user_typing_status,omitempty"`
	ConversationsUpdated *ConversationsUpdated `json:"conversations_updated,omitempty"`
	ConversationOpened   *ConversationOpened   `json:"conversation_opened,omitempty"`
}

// Authenticate carries the session token. Must be the first command after
// connect; the server drops auth state on every reconnect.
type Authenticate struct {
	Token string `json:"token,omitempty"`
}

// Heartbeat keeps the authenticated session alive.
type Heartbeat struct {
	SentAt int64 `json:"sent_at,omitempty"`
}

// AppState reports foreground/background transitions.
type AppState struct {
	State string `json:"state,omitempty"` // "active" or "background"
}

// Room joins or leaves a conversation room.
type Room struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// SendMessage submits a new message. LocalID is a client-generated id used
// to correlate the optimistic copy with the server-assigned message id.
type SendMessage struct {
	LocalID        string `json:"local_id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// MarkRead marks every unread message in the conversation as read by the
// local user.
type MarkRead struct {
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// ClientMsg is one outbound websocket frame. Exactly one field is set.
type ClientMsg struct {
	Authenticate       *Authenticate       `json:"authenticate,omitempty"`
	Heartbeat          *Heartbeat          `json:"heartbeat,omitempty"`
	AppState           *AppState           `json:"app_state_change,omitempty"`
	Join               *Room               `json:"join,omitempty"`
	Leave              *Room               `json:"leave,omitempty"`
	SendMessage        *SendMessage        `json:"message_send,omitempty"`
	TypingStart        *Typing             `json:"typing_start,omitempty"`
	TypingStop         *Typing             `json:"typing_stop,omitempty"`
	MarkRead           *MarkRead           `json:"message_read,omitempty"`
	ConversationOpened *ConversationOpened `json:"conversation_opened,omitempty"`
}
