package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/minimirror/api"
	"github.com/mqy/minimirror/state"
)

// View is one open conversation. It owns the view-scoped resources the
// engine must release on teardown: the room membership, the local typing
// debounce timer and the message pull.
type View struct {
	sync.Mutex

	engine *Engine
	convID int64
	typist *state.Typist
	closed bool
}

// OpenConversation joins the conversation room, announces the open (which
// clears the local unread count and tells the server), and pulls the
// message history in the background.
func (e *Engine) OpenConversation(ctx context.Context, convID int64) *View {
	selfID := e.store.SelfID()

	e.mu.Lock()
	e.openConv = convID
	e.mu.Unlock()

	e.adapter.Join(convID)
	e.adapter.ConversationOpened(convID, selfID)
	e.adapter.MarkRead(convID)
	e.store.ClearUnread(convID, selfID)

	v := &View{
		engine: e,
		convID: convID,
	}
	v.typist = state.NewTypist(state.DefaultTypingIdle,
		func() { e.adapter.TypingStart(convID) },
		func() { e.adapter.TypingStop(convID) },
	)

	go func() {
		list, err := e.puller.GetMessages(ctx, convID)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				e.forceLogout(err)
				return
			}
			// Transient: the mirror keeps whatever it had.
			glog.Errorf("OpenConversation(): pull messages error, conversation: %d, err: %v", convID, err)
			return
		}
		e.store.SetMessages(convID, list)
	}()

	return v
}

// Keystroke reports local typing activity in this conversation.
func (v *View) Keystroke() {
	v.Lock()
	closed := v.closed
	v.Unlock()
	if !closed {
		v.typist.Keystroke()
	}
}

// Send records an optimistic local message and submits it over the channel.
// Returns a copy of the recorded message, nil if the conversation is gone.
func (v *View) Send(content string) *state.Message {
	m := v.engine.store.AppendLocal(v.convID, content, time.Now().UnixMilli())
	if m == nil {
		glog.Errorf("Send(): unknown conversation: %d", v.convID)
		return nil
	}
	v.engine.adapter.SendMessage(v.convID, m.LocalID, content)
	return m
}

// MarkRead re-acknowledges the conversation as read by the local user.
func (v *View) MarkRead() {
	v.engine.adapter.MarkRead(v.convID)
	v.engine.store.ClearUnread(v.convID, v.engine.store.SelfID())
}

// Conversation returns an immutable snapshot of the viewed conversation.
func (v *View) Conversation() *state.Conversation {
	return v.engine.store.Conversation(v.convID)
}

// Close releases everything the view registered: the pending typing-stop
// timer fires its stop signal, the room is left, and the periodic typing
// re-subscription forgets the conversation. Safe to call more than once.
func (v *View) Close() {
	v.Lock()
	if v.closed {
		v.Unlock()
		return
	}
	v.closed = true
	v.Unlock()

	v.typist.Stop()
	v.engine.adapter.Leave(v.convID)

	v.engine.mu.Lock()
	if v.engine.openConv == v.convID {
		v.engine.openConv = 0
	}
	v.engine.mu.Unlock()
}
