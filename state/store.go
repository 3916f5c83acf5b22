package state

import (
	"sync"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/minimirror/wire"
)

// Store is the single reconciliation point for all conversation, message
// and typing state. Every mutation goes through one of its methods under
// one lock; readers get deep copies, never live references.
type Store struct {
	sync.RWMutex

	selfID        int32
	conversations map[int64]*Conversation

	// typists holds the global typing broadcast state: uid -> display name.
	typists map[int32]string

	// seen guards against duplicate delivery of message events.
	seen map[dedupKey]struct{}
}

func NewStore(selfID int32) *Store {
	return &Store{
		selfID:        selfID,
		conversations: make(map[int64]*Conversation),
		typists:       make(map[int32]string),
		seen:          make(map[dedupKey]struct{}),
	}
}

func (s *Store) SelfID() int32 {
	return s.selfID
}

// MergeSnapshot folds an authoritative conversation list into the mirror.
// With full=true absent conversations are removed; a presence-only refresh
// (full=false) merges presence fields and never drops entries. Typing flags
// survive every snapshot merge.
func (s *Store) MergeSnapshot(list []*wire.Conversation, full bool) {
	s.Lock()
	defer s.Unlock()

	keep := make(map[int64]bool, len(list))
	for _, in := range list {
		if in == nil || in.ID == 0 {
			continue
		}
		keep[in.ID] = true
		existing, ok := s.conversations[in.ID]
		if !ok {
			if full {
				s.conversations[in.ID] = fromSnapshot(in)
			}
			continue
		}
		if full {
			mergeConversation(existing, in)
		} else {
			mergePresence(existing, in)
		}
	}

	if full {
		for id := range s.conversations {
			if !keep[id] {
				glog.V(5).Infof("MergeSnapshot(): conversation %d gone from full load, removing", id)
				delete(s.conversations, id)
			}
		}
		mergesTotal.WithLabelValues("snapshot").Inc()
	} else {
		mergesTotal.WithLabelValues("presence").Inc()
	}
}

// ApplyMessage folds one `message:new` event into the mirror. Duplicate
// events (same dedup key) are discarded. The dedup key is recorded even
// when the conversation is unknown, so that the snapshot pull triggered by
// ErrUnknownConversation cannot be followed by a double-counted replay.
func (s *Store) ApplyMessage(ev *wire.NewMessage) error {
	if ev == nil {
		return nil
	}

	s.Lock()
	defer s.Unlock()

	key := keyOf(ev)
	if _, dup := s.seen[key]; dup {
		glog.V(5).Infof("ApplyMessage(): duplicate event, id: %d, conversation: %d", ev.ID, ev.ConversationID)
		dupEvents.Inc()
		return nil
	}
	s.seen[key] = struct{}{}

	c, ok := s.conversations[ev.ConversationID]
	if !ok {
		return ErrUnknownConversation
	}

	// Events are always newer than any prior snapshot: the summary is
	// updated unconditionally. Presence and typing are untouched.
	c.LastMsgContent = ev.Content
	c.LastMsgTime = ev.CreatedAt
	c.LastMsgSender = ev.SenderID
	if ev.SenderID != s.selfID {
		c.UnreadCount++
	}

	if c.message(ev.ID) == nil {
		c.Messages = append(c.Messages, &Message{
			ID:             ev.ID,
			ConversationID: ev.ConversationID,
			SenderID:       ev.SenderID,
			Content:        ev.Content,
			CreatedAt:      ev.CreatedAt,
			Delivery:       Sent,
		})
	}

	mergesTotal.WithLabelValues("event").Inc()
	return nil
}

// ApplyDelivered advances one message Sent -> Delivered.
func (s *Store) ApplyDelivered(ev *wire.MessageDelivered) {
	if ev == nil {
		return
	}

	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[ev.ConversationID]
	if !ok {
		return
	}
	if m := c.message(ev.MessageID); m != nil {
		m.advance(Delivered, ev.DeliveredAt)
	}
}

// ApplyRead folds a read acknowledgment. Every unread message addressed to
// the reader advances to Read (read implies delivered, so Sent -> Read is
// allowed). The conversation unread count is cleared only when the reader
// is the local user; the peer's read state never changes our own count.
func (s *Store) ApplyRead(ev *wire.MessageRead) {
	if ev == nil {
		return
	}

	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[ev.ConversationID]
	if !ok {
		return
	}

	for _, m := range c.Messages {
		if m.SenderID == ev.UserID {
			continue // not addressed to the reader
		}
		m.advance(Read, ev.ReadAt)
	}

	if ev.UserID == s.selfID {
		c.UnreadCount = 0
	}
}

// ClearUnread handles a `conversation_opened` acknowledgment. Events scoped
// to the other participant reflect *their* unread state and are ignored.
func (s *Store) ClearUnread(convID int64, userID int32) {
	if userID != s.selfID {
		glog.V(5).Infof("ClearUnread(): ignore opened event for foreign user %d", userID)
		return
	}

	s.Lock()
	defer s.Unlock()

	if c, ok := s.conversations[convID]; ok {
		c.UnreadCount = 0
	}
}

// ApplyPresence updates the presence fields of every conversation whose
// peer matches. It never touches unread counts or last-message summaries.
//
// On an offline -> online transition the local user's own Sent messages in
// that conversation are promoted to Delivered. This is a best-effort UX
// heuristic (presence implies the peer's client drained its queue), not a
// delivery acknowledgment; nothing correctness-sensitive may rely on it.
func (s *Store) ApplyPresence(ev *wire.UserStatus) {
	if ev == nil {
		return
	}

	s.Lock()
	defer s.Unlock()

	for _, c := range s.conversations {
		if c.Peer.ID != ev.UserID {
			continue
		}
		cameOnline := ev.Online && !c.Online
		c.Online = ev.Online
		if ev.LastSeen != 0 {
			c.LastSeen = ev.LastSeen
		}
		if cameOnline {
			for _, m := range c.Messages {
				if m.SenderID == s.selfID && m.Delivery == Sent {
					m.advance(Delivered, ev.LastSeen)
				}
			}
		}
	}
}

// SetTyping folds a room-scoped typing event. Self-originated events are
// dropped: the local user is never shown as typing to themselves.
func (s *Store) SetTyping(convID int64, userID int32, on bool) {
	if userID == s.selfID {
		return
	}

	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[convID]
	if !ok || c.Peer.ID != userID {
		return
	}
	c.Typing = on
}

// ApplyUserTyping folds the global typing-status broadcast, which lets the
// conversation list show "typing..." without joining the room.
func (s *Store) ApplyUserTyping(ev *wire.UserTyping) {
	if ev == nil || ev.UserID == s.selfID {
		return
	}

	s.Lock()
	defer s.Unlock()

	if ev.IsTyping {
		s.typists[ev.UserID] = ev.UserName
	} else {
		delete(s.typists, ev.UserID)
	}

	for _, c := range s.conversations {
		if c.Peer.ID == ev.UserID {
			c.Typing = ev.IsTyping
		}
	}
}

// AppendLocal records an optimistic local send: the message is visible in
// Sent state before any server acknowledgment, and the last-message summary
// follows it. Returns a copy of the recorded message.
func (s *Store) AppendLocal(convID int64, content string, at int64) *Message {
	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[convID]
	if !ok {
		return nil
	}

	m := &Message{
		LocalID:        uuid.New(),
		ConversationID: convID,
		SenderID:       s.selfID,
		Content:        content,
		CreatedAt:      at,
		Delivery:       Sent,
	}
	c.Messages = append(c.Messages, m)
	c.LastMsgContent = content
	c.LastMsgTime = at
	c.LastMsgSender = s.selfID
	return m.clone()
}

// ConfirmLocal assigns the server id to an optimistic local message,
// matched by local id. Records the dedup key of the matching event shape so
// the server echo of our own send cannot double-apply.
func (s *Store) ConfirmLocal(convID int64, localID string, serverID, createdAt int64) {
	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[convID]
	if !ok {
		return
	}
	for _, m := range c.Messages {
		if m.LocalID == localID && m.ID == 0 {
			m.ID = serverID
			if createdAt != 0 {
				m.CreatedAt = createdAt
			}
			s.seen[dedupKey{
				id:        serverID,
				convID:    convID,
				senderID:  m.SenderID,
				createdAt: m.CreatedAt,
				content:   m.Content,
			}] = struct{}{}
			return
		}
	}
}

// SetMessages replaces a conversation's message list from an authoritative
// pull. Delivery states never regress: if the mirror already observed a
// later state for a message, the later state wins. Optimistic local
// messages that the server does not know yet are kept at the tail.
func (s *Store) SetMessages(convID int64, list []*wire.Message) {
	s.Lock()
	defer s.Unlock()

	c, ok := s.conversations[convID]
	if !ok {
		return
	}

	existing := make(map[int64]*Message, len(c.Messages))
	var local []*Message
	for _, m := range c.Messages {
		if m.ID != 0 {
			existing[m.ID] = m
		} else {
			local = append(local, m)
		}
	}

	out := make([]*Message, 0, len(list)+len(local))
	for _, in := range list {
		if in == nil || in.ID == 0 {
			continue
		}
		m := &Message{
			ID:             in.ID,
			ConversationID: convID,
			SenderID:       in.SenderID,
			Content:        in.Content,
			CreatedAt:      in.CreatedAt,
			Delivery:       Sent,
			DeliveredAt:    in.DeliveredAt,
			ReadAt:         in.ReadAt,
		}
		if in.Read {
			m.Delivery = Read
		} else if in.Delivered {
			m.Delivery = Delivered
		}
		if old := existing[in.ID]; old != nil && old.Delivery > m.Delivery {
			m.Delivery = old.Delivery
			m.DeliveredAt = old.DeliveredAt
			m.ReadAt = old.ReadAt
		}
		out = append(out, m)
	}
	c.Messages = append(out, local...)
}

// Conversations returns a deep copy of every conversation.
func (s *Store) Conversations() []*Conversation {
	s.RLock()
	defer s.RUnlock()

	out := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.clone())
	}
	return out
}

// Conversation returns a deep copy of one conversation, or nil.
func (s *Store) Conversation(id int64) *Conversation {
	s.RLock()
	defer s.RUnlock()

	if c, ok := s.conversations[id]; ok {
		return c.clone()
	}
	return nil
}

// Typists returns a copy of the global typing-status broadcast state.
func (s *Store) Typists() map[int32]string {
	s.RLock()
	defer s.RUnlock()

	out := make(map[int32]string, len(s.typists))
	for k, v := range s.typists {
		out[k] = v
	}
	return out
}
