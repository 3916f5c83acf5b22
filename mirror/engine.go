// Package mirror wires the event channel, the pull API, the refresh
// scheduler and the state store into one running client engine.
package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/mqy/minimirror/api"
	"github.com/mqy/minimirror/channel"
	"github.com/mqy/minimirror/refresh"
	"github.com/mqy/minimirror/session"
	"github.com/mqy/minimirror/state"
	"github.com/mqy/minimirror/wire"
)

// Refresh keys. Every trigger source for the same purpose funnels through
// the same key so overlapping network calls coalesce.
const (
	KeyConversations = "conversations"
	KeyPresence      = "presence"
	KeyTyping        = "typing-resubscribe"
)

const (
	// Full conversation resync cadence.
	fullResyncInterval = 30 * time.Second

	// Presence-only refresh cadence, deliberately longer: presence also
	// arrives via push, the pull only repairs missed broadcasts.
	presenceInterval = 2 * time.Minute

	// Periodic room re-join; the only repair path for a stalled inbound
	// typing flag, since entries have no client-side expiry.
	typingResubInterval = 2 * time.Minute

	// Debounce for push-driven conversations_updated hints.
	updateDebounce = 500 * time.Millisecond

	// Delayed re-schedule after a focus regain.
	focusSettleDelay = 2 * time.Second
)

// Config carries the Engine's collaborators.
type Config struct {
	Adapter  *channel.Adapter
	Puller   api.IPuller
	Store    *state.Store
	Sessions *session.Store
}

// Engine runs the reconciliation loop: one dispatch goroutine feeds every
// mutation into the state store, scheduler tasks pull snapshots, and an
// authorization failure tears the whole session down.
type Engine struct {
	adapter  *channel.Adapter
	puller   api.IPuller
	store    *state.Store
	sessions *session.Store

	sched *refresh.Scheduler

	evChan chan *wire.ServerMsg
	lfChan chan channel.Lifecycle

	mu       sync.Mutex
	openConv int64
	cancel   context.CancelFunc
	fatalErr error
	logout   sync.Once
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		adapter:  cfg.Adapter,
		puller:   cfg.Puller,
		store:    cfg.Store,
		sessions: cfg.Sessions,
		evChan:   make(chan *wire.ServerMsg, 64),
		lfChan:   make(chan channel.Lifecycle, 16),
	}
}

// Run blocks until ctx is done or the session is torn down. Returns
// api.ErrUnauthorized after a forced logout, nil otherwise.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.sched = refresh.NewScheduler(ctx)
	e.sched.Register(KeyConversations, e.refreshConversations)
	e.sched.Register(KeyPresence, e.refreshPresence)
	e.sched.Register(KeyTyping, e.resubscribeTyping)

	evSub := e.adapter.Subscribe(func(msg *wire.ServerMsg) {
		select {
		case e.evChan <- msg:
		case <-ctx.Done():
		}
	})
	defer evSub.Cancel()

	lfSub := e.adapter.SubscribeLifecycle(func(ev channel.Lifecycle) {
		select {
		case e.lfChan <- ev:
		case <-ctx.Done():
		}
	})
	defer lfSub.Cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.adapter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return e.dispatchLoop(gctx)
	})

	e.sched.Every(ctx, KeyConversations, fullResyncInterval)
	e.sched.Every(ctx, KeyPresence, presenceInterval)
	e.sched.Every(ctx, KeyTyping, typingResubInterval)
	e.sched.Schedule(KeyConversations, 0)

	err := g.Wait()
	e.sched.Stop()

	e.mu.Lock()
	if e.fatalErr != nil {
		err = e.fatalErr
	}
	e.mu.Unlock()
	glog.Infof("Run(): engine stopped, err: %v", err)
	return err
}

// dispatchLoop is the single writer feeding the state store.
func (e *Engine) dispatchLoop(ctx context.Context) error {
	glog.Infof("dispatchLoop(): enter")
	defer glog.Infof("dispatchLoop(): exited")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-e.evChan:
			e.handleEvent(msg)
		case ev := <-e.lfChan:
			e.handleLifecycle(ev)
		}
	}
}

func (e *Engine) handleEvent(msg *wire.ServerMsg) {
	if v := msg.NewMessage; v != nil {
		if v.SenderID == e.store.SelfID() && v.LocalID != "" {
			// Echo of our own send: assign the server id to the
			// optimistic copy. The recorded dedup key makes the
			// ApplyMessage below a no-op.
			e.store.ConfirmLocal(v.ConversationID, v.LocalID, v.ID, v.CreatedAt)
		}
		if err := e.store.ApplyMessage(v); errors.Is(err, state.ErrUnknownConversation) {
			// Possible new conversation: pull a snapshot and let the
			// full-list merge insert it. If the server-side creation is
			// still racing, the next cycle settles it.
			glog.V(5).Infof("handleEvent(): unknown conversation %d, pulling snapshot", v.ConversationID)
			e.sched.Schedule(KeyConversations, 0)
		}
	} else if v := msg.MessageDelivered; v != nil {
		e.store.ApplyDelivered(v)
	} else if v := msg.MessageRead; v != nil {
		e.store.ApplyRead(v)
	} else if v := msg.TypingStart; v != nil {
		e.store.SetTyping(v.ConversationID, v.UserID, true)
	} else if v := msg.TypingStop; v != nil {
		e.store.SetTyping(v.ConversationID, v.UserID, false)
	} else if v := msg.UserStatus; v != nil {
		e.store.ApplyPresence(v)
	} else if v := msg.UserTyping; v != nil {
		e.store.ApplyUserTyping(v)
	} else if msg.ConversationsUpdated != nil {
		e.sched.Schedule(KeyConversations, updateDebounce)
	} else if v := msg.ConversationOpened; v != nil {
		e.store.ClearUnread(v.ConversationID, v.UserID)
	} else {
		glog.V(5).Infof("handleEvent(): unsupported message: %+v", msg)
	}
}

func (e *Engine) handleLifecycle(ev channel.Lifecycle) {
	switch ev.Kind {
	case channel.Authenticated:
		// Resync immediately: anything pushed while offline was lost.
		e.sched.Schedule(KeyConversations, 0)
		e.mu.Lock()
		open := e.openConv
		e.mu.Unlock()
		if open != 0 {
			e.adapter.Join(open)
		}
	case channel.AuthError:
		e.forceLogout(errors.New("mirror: channel authentication rejected"))
	case channel.Disconnected:
		glog.Infof("handleLifecycle(): disconnected: %s", ev.Reason)
	case channel.Reconnected:
		glog.Infof("handleLifecycle(): reconnected, attempt: %d", ev.Attempt)
	}
}

func (e *Engine) refreshConversations(ctx context.Context) error {
	list, err := e.puller.GetConversations(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			e.forceLogout(err)
		}
		return err
	}
	e.store.MergeSnapshot(list, true)
	return nil
}

func (e *Engine) refreshPresence(ctx context.Context) error {
	list, err := e.puller.GetConversations(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			e.forceLogout(err)
		}
		return err
	}
	e.store.MergeSnapshot(list, false)
	return nil
}

func (e *Engine) resubscribeTyping(ctx context.Context) error {
	e.mu.Lock()
	open := e.openConv
	e.mu.Unlock()
	if open != 0 {
		e.adapter.Join(open)
	}
	return nil
}

// forceLogout tears the session down exactly once: the stored session is
// cleared and the engine context cancelled.
func (e *Engine) forceLogout(cause error) {
	e.logout.Do(func() {
		glog.Errorf("forceLogout(): %v", cause)
		if e.sessions != nil {
			if err := e.sessions.Clear(); err != nil {
				glog.Errorf("forceLogout(): clear session error: %v", err)
			}
		}
		e.mu.Lock()
		e.fatalErr = api.ErrUnauthorized
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// FocusRegained is called when the UI regains focus: an immediate refresh
// for responsiveness plus one delayed re-schedule to settle, both routed
// through the coalescing scheduler.
func (e *Engine) FocusRegained() {
	e.adapter.AppStateChange("active")
	e.sched.Schedule(KeyConversations, 0)
	e.sched.Schedule(KeyConversations, focusSettleDelay)
}

// FocusLost reports the app going to background.
func (e *Engine) FocusLost() {
	e.adapter.AppStateChange("background")
}

// Conversations exposes an immutable snapshot of the mirror for rendering.
func (e *Engine) Conversations() []*state.Conversation {
	return e.store.Conversations()
}
