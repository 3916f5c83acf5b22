package state

import (
	"github.com/mqy/minimirror/wire"
)

// dedupKey is the composite identity of a message event, used to discard
// duplicate delivery from the transport.
type dedupKey struct {
	id        int64
	convID    int64
	senderID  int32
	createdAt int64
	content   string
}

func keyOf(ev *wire.NewMessage) dedupKey {
	return dedupKey{
		id:        ev.ID,
		convID:    ev.ConversationID,
		senderID:  ev.SenderID,
		createdAt: ev.CreatedAt,
		content:   ev.Content,
	}
}

// preserveLocal is the freshness test: a snapshot may only override the
// locally-held unread count when its last-message fields differ from ours.
// Identical fields mean the snapshot is no newer than what we already hold,
// so a push-driven local increment that outran the server's own count wins.
func preserveLocal(existing *Conversation, incoming *wire.Conversation) bool {
	var content string
	var sentAt int64
	var senderID int32
	if lm := incoming.LastMessage; lm != nil {
		content = lm.Content
		sentAt = lm.SentAt
		senderID = lm.SenderID
	}
	return existing.LastMsgTime == sentAt &&
		existing.LastMsgContent == content &&
		existing.LastMsgSender == senderID
}

// mergeConversation folds one snapshot entry into an existing conversation,
// in place. Typing is always preserved: snapshots never carry it.
func mergeConversation(existing *Conversation, incoming *wire.Conversation) {
	existing.Peer = Peer{
		ID:     incoming.Peer.ID,
		Name:   incoming.Peer.Name,
		Email:  incoming.Peer.Email,
		Avatar: incoming.Peer.Avatar,
	}
	existing.Online = incoming.Online
	existing.LastSeen = incoming.LastSeen

	if preserveLocal(existing, incoming) {
		if incoming.UnreadCount > existing.UnreadCount {
			existing.UnreadCount = incoming.UnreadCount
		}
		return
	}

	if lm := incoming.LastMessage; lm != nil {
		existing.LastMsgContent = lm.Content
		existing.LastMsgTime = lm.SentAt
		existing.LastMsgSender = lm.SenderID
	}
	existing.UnreadCount = incoming.UnreadCount
}

// mergePresence folds only the presence fields of a snapshot entry.
func mergePresence(existing *Conversation, incoming *wire.Conversation) {
	existing.Online = incoming.Online
	existing.LastSeen = incoming.LastSeen
}
