package mirror

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/mqy/minimirror/api"
	api_mock "github.com/mqy/minimirror/api/mock"
	"github.com/mqy/minimirror/channel"
	"github.com/mqy/minimirror/state"
	"github.com/mqy/minimirror/wire"
)

const selfID int32 = 1

// newTestEngine wires an engine whose adapter dials an unreachable
// endpoint: the channel stays down and events are injected directly into
// the dispatch loop.
func newTestEngine(puller api.IPuller) *Engine {
	return NewEngine(Config{
		Adapter: channel.NewAdapter("ws://127.0.0.1:1/ws", "token"),
		Puller:  puller,
		Store:   state.NewStore(selfID),
	})
}

func conv7() *wire.Conversation {
	return &wire.Conversation{
		ID:          7,
		Peer:        wire.User{ID: 9, Name: "bob"},
		LastMessage: &wire.LastMessage{Content: "hi", SentAt: 100, SenderID: 9},
	}
}

// The startup pull populates the mirror; message events merge exactly once
// even when the transport delivers them twice.
func TestEngineResyncAndEventMerge(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	puller := api_mock.NewMockIPuller(mockCtrl)
	puller.EXPECT().GetConversations(gomock.Any()).
		Return([]*wire.Conversation{conv7()}, nil).AnyTimes()

	e := newTestEngine(puller)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return e.store.Conversation(7) != nil
	}, 5*time.Second, 20*time.Millisecond)

	e.evChan <- &wire.ServerMsg{NewMessage: &wire.NewMessage{
		ID: 101, ConversationID: 7, SenderID: 9, Content: "yo", CreatedAt: 200,
	}}
	// Duplicate delivery from the transport.
	e.evChan <- &wire.ServerMsg{NewMessage: &wire.NewMessage{
		ID: 101, ConversationID: 7, SenderID: 9, Content: "yo", CreatedAt: 200,
	}}

	assert.Eventually(t, func() bool {
		c := e.store.Conversation(7)
		return c != nil && c.LastMsgContent == "yo"
	}, 5*time.Second, 20*time.Millisecond)

	c := e.store.Conversation(7)
	assert.EqualValues(t, 1, c.UnreadCount, "duplicate event must not double count")

	// An opened ack scoped to the peer reflects *their* unread state.
	e.evChan <- &wire.ServerMsg{ConversationOpened: &wire.ConversationOpened{ConversationID: 7, UserID: 9}}
	// Our own ack clears it.
	e.evChan <- &wire.ServerMsg{ConversationOpened: &wire.ConversationOpened{ConversationID: 7, UserID: selfID}}

	assert.Eventually(t, func() bool {
		return e.store.Conversation(7).UnreadCount == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

// A message for an unknown conversation triggers a snapshot pull that
// inserts it; the recorded dedup key keeps the event from double counting.
func TestEngineUnknownConversationPullsSnapshot(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	var created int32 // flips once the server knows conversation 8

	puller := api_mock.NewMockIPuller(mockCtrl)
	puller.EXPECT().GetConversations(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*wire.Conversation, error) {
			list := []*wire.Conversation{conv7()}
			if atomic.LoadInt32(&created) != 0 {
				list = append(list, &wire.Conversation{
					ID:          8,
					Peer:        wire.User{ID: 12, Name: "carol"},
					LastMessage: &wire.LastMessage{Content: "first", SentAt: 500, SenderID: 12},
					UnreadCount: 1,
				})
			}
			return list, nil
		}).AnyTimes()

	e := newTestEngine(puller)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return e.store.Conversation(7) != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Nil(t, e.store.Conversation(8))

	atomic.StoreInt32(&created, 1)
	e.evChan <- &wire.ServerMsg{NewMessage: &wire.NewMessage{
		ID: 201, ConversationID: 8, SenderID: 12, Content: "first", CreatedAt: 500,
	}}

	assert.Eventually(t, func() bool {
		return e.store.Conversation(8) != nil
	}, 5*time.Second, 20*time.Millisecond)

	c := e.store.Conversation(8)
	assert.EqualValues(t, 1, c.UnreadCount)
	assert.Equal(t, "first", c.LastMsgContent)

	cancel()
	assert.NoError(t, <-done)
}

// The conversations_updated hint routes through the debounced scheduler: a
// burst collapses into one extra pull.
func TestEngineUpdateHintIsDebounced(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	var pulls int32
	puller := api_mock.NewMockIPuller(mockCtrl)
	puller.EXPECT().GetConversations(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*wire.Conversation, error) {
			atomic.AddInt32(&pulls, 1)
			return []*wire.Conversation{conv7()}, nil
		}).AnyTimes()

	e := newTestEngine(puller)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&pulls) == 1
	}, 5*time.Second, 20*time.Millisecond)

	for i := 0; i < 5; i++ {
		e.evChan <- &wire.ServerMsg{ConversationsUpdated: &wire.ConversationsUpdated{}}
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&pulls) == 2
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(700 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&pulls), "hint burst must coalesce into one pull")

	cancel()
	assert.NoError(t, <-done)
}

// An unauthorized pull is fatal: the engine tears down and reports it.
func TestEngineForcedLogout(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	puller := api_mock.NewMockIPuller(mockCtrl)
	puller.EXPECT().GetConversations(gomock.Any()).
		Return(nil, api.ErrUnauthorized).AnyTimes()

	e := newTestEngine(puller)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrUnauthorized)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not tear down on unauthorized pull")
	}
}

// A transient pull failure leaves state untouched and the next cycle
// recovers.
func TestEngineTransientPullFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	var calls int32
	puller := api_mock.NewMockIPuller(mockCtrl)
	puller.EXPECT().GetConversations(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*wire.Conversation, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, assert.AnError
			}
			return []*wire.Conversation{conv7()}, nil
		}).AnyTimes()

	e := newTestEngine(puller)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Nil(t, e.store.Conversation(7))

	// The failed cycle cleared in-flight, so a hint re-pulls successfully.
	e.evChan <- &wire.ServerMsg{ConversationsUpdated: &wire.ConversationsUpdated{}}
	assert.Eventually(t, func() bool {
		return e.store.Conversation(7) != nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
