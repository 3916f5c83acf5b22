package channel

import (
	"github.com/mqy/minimirror/wire"
)

// Typed outbound commands. All of them are fire-and-forget: while the
// adapter is not connected-and-authenticated they are dropped, not queued.

// Join enters a conversation room to receive its room-scoped events.
func (a *Adapter) Join(conversationID int64) {
	a.send(&wire.ClientMsg{Join: &wire.Room{ConversationID: conversationID}})
}

// Leave exits a conversation room.
func (a *Adapter) Leave(conversationID int64) {
	a.send(&wire.ClientMsg{Leave: &wire.Room{ConversationID: conversationID}})
}

// SendMessage submits a new message, correlated by localID.
func (a *Adapter) SendMessage(conversationID int64, localID, content string) {
	a.send(&wire.ClientMsg{SendMessage: &wire.SendMessage{
		LocalID:        localID,
		ConversationID: conversationID,
		Content:        content,
	}})
}

// TypingStart signals the local user started typing in a conversation.
func (a *Adapter) TypingStart(conversationID int64) {
	a.send(&wire.ClientMsg{TypingStart: &wire.Typing{ConversationID: conversationID}})
}

// TypingStop signals the local user stopped typing in a conversation.
func (a *Adapter) TypingStop(conversationID int64) {
	a.send(&wire.ClientMsg{TypingStop: &wire.Typing{ConversationID: conversationID}})
}

// MarkRead marks every unread message in the conversation as read.
func (a *Adapter) MarkRead(conversationID int64) {
	a.send(&wire.ClientMsg{MarkRead: &wire.MarkRead{ConversationID: conversationID}})
}

// ConversationOpened emits the custom conversation_opened event.
func (a *Adapter) ConversationOpened(conversationID int64, userID int32) {
	a.send(&wire.ClientMsg{ConversationOpened: &wire.ConversationOpened{
		ConversationID: conversationID,
		UserID:         userID,
	}})
}

// AppStateChange reports a foreground/background transition.
func (a *Adapter) AppStateChange(state string) {
	a.send(&wire.ClientMsg{AppState: &wire.AppState{State: state}})
}
