// Package state holds the client-side mirror of conversations and messages
// and the merge logic that keeps it consistent while snapshot pulls, live
// events and optimistic local sends race each other.
package state

import (
	"errors"

	"github.com/mqy/minimirror/wire"
)

// ErrUnknownConversation is returned when a message event names a
// conversation id the mirror has never seen. The caller should pull a fresh
// snapshot and retry insertion via MergeSnapshot.
var ErrUnknownConversation = errors.New("state: unknown conversation")

// Delivery is the per-message delivery state. Transitions are monotonic:
// Sent -> Delivered -> Read, never backwards.
type Delivery int32

const (
	Sent Delivery = iota + 1
	Delivered
	Read
)

func (d Delivery) String() string {
	switch d {
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	}
	return "unknown"
}

// Marks returns the rendered indicator: number of check marks and whether
// they are colored. One mark = sent, two gray = delivered, two colored = read.
func (d Delivery) Marks() (n int, colored bool) {
	switch d {
	case Delivered:
		return 2, false
	case Read:
		return 2, true
	}
	return 1, false
}

// Peer identifies the other participant of a two-party conversation.
type Peer struct {
	ID     int32
	Name   string
	Email  string
	Avatar string
}

// Message is one message owned by a conversation's message list. ID is zero
// until server-assigned; LocalID correlates an optimistic local send with
// later confirmations. Once the server id is known the message is immutable
// except for delivery transitions.
type Message struct {
	ID             int64
	LocalID        string
	ConversationID int64
	SenderID       int32
	Content        string
	CreatedAt      int64
	Delivery       Delivery
	DeliveredAt    int64
	ReadAt         int64
}

// advance moves the delivery state forward, never backward. A jump from
// Sent straight to Read records the read time as delivery time too, since
// read implies delivered.
func (m *Message) advance(to Delivery, at int64) bool {
	if to <= m.Delivery {
		return false
	}
	if to >= Delivered && m.DeliveredAt == 0 {
		m.DeliveredAt = at
	}
	if to == Read && m.ReadAt == 0 {
		m.ReadAt = at
	}
	m.Delivery = to
	return true
}

func (m *Message) clone() *Message {
	c := *m
	return &c
}

// Conversation is the mirrored view of one two-party conversation. Typing
// is ephemeral and never comes from snapshots.
type Conversation struct {
	ID             int64
	Peer           Peer
	Online         bool
	LastSeen       int64
	LastMsgContent string
	LastMsgTime    int64
	LastMsgSender  int32
	UnreadCount    int32
	Typing         bool
	Messages       []*Message
}

func (c *Conversation) clone() *Conversation {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	return &out
}

// message finds a message by server id.
func (c *Conversation) message(id int64) *Message {
	for _, m := range c.Messages {
		if m.ID == id && id != 0 {
			return m
		}
	}
	return nil
}

func fromSnapshot(in *wire.Conversation) *Conversation {
	c := &Conversation{
		ID: in.ID,
		Peer: Peer{
			ID:     in.Peer.ID,
			Name:   in.Peer.Name,
			Email:  in.Peer.Email,
			Avatar: in.Peer.Avatar,
		},
		Online:      in.Online,
		LastSeen:    in.LastSeen,
		UnreadCount: in.UnreadCount,
	}
	if lm := in.LastMessage; lm != nil {
		c.LastMsgContent = lm.Content
		c.LastMsgTime = lm.SentAt
		c.LastMsgSender = lm.SenderID
	}
	return c
}
