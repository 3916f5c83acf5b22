// Package channel wraps the persistent websocket connection to the chat
// backend: typed inbound events, typed outbound commands, authentication,
// heartbeat and reconnection.
package channel

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/mqy/minimirror/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 4096

	BackoffMinInterval = 1 * time.Second
	BackoffMaxInterval = 60 * time.Second
	BackoffMultiplier  = 1.5
)

// LifecycleKind enumerates connection lifecycle transitions.
type LifecycleKind int

const (
	Connected LifecycleKind = iota + 1
	Authenticated
	AuthError
	ConnectError
	Disconnected
	Reconnected
)

func (k LifecycleKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case AuthError:
		return "auth_error"
	case ConnectError:
		return "connect_error"
	case Disconnected:
		return "disconnected"
	case Reconnected:
		return "reconnected"
	}
	return "unknown"
}

// Lifecycle is one lifecycle event. Reason is set for ConnectError and
// Disconnected, Attempt for Reconnected.
type Lifecycle struct {
	Kind    LifecycleKind
	Reason  string
	Attempt int
}

// EventHandler receives inbound server messages, called from the single
// receive loop in arrival order.
type EventHandler func(*wire.ServerMsg)

// LifecycleHandler receives lifecycle events.
type LifecycleHandler func(Lifecycle)

// Subscription is the handle returned by Subscribe calls. Cancel releases
// the registration; it is safe to call more than once.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Adapter manages one websocket connection on behalf of every view.
// Connection errors are reported via lifecycle events, never returned from
// sends; sends are dropped (not queued) unless connected and authenticated.
type Adapter struct {
	sync.Mutex

	url   string
	token string
	sid   string // client session id, for log correlation

	dialer *websocket.Dialer

	conn      *websocket.Conn
	connected bool
	authed    bool
	sendChan  chan *wire.ClientMsg

	nextSubID int
	subs      map[int]EventHandler
	lifeSubs  map[int]LifecycleHandler

	wg sync.WaitGroup
}

// NewAdapter creates an Adapter for the given websocket URL and session
// token. Nothing connects until Run.
func NewAdapter(url, token string) *Adapter {
	return &Adapter{
		url:   url,
		token: token,
		sid:   strings.ReplaceAll(uuid.New(), "-", ""),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		subs:     make(map[int]EventHandler),
		lifeSubs: make(map[int]LifecycleHandler),
	}
}

// Subscribe registers a handler for inbound server messages.
func (a *Adapter) Subscribe(h EventHandler) *Subscription {
	a.Lock()
	defer a.Unlock()
	id := a.nextSubID
	a.nextSubID++
	a.subs[id] = h
	return &Subscription{cancel: func() {
		a.Lock()
		delete(a.subs, id)
		a.Unlock()
	}}
}

// SubscribeLifecycle registers a handler for lifecycle events.
func (a *Adapter) SubscribeLifecycle(h LifecycleHandler) *Subscription {
	a.Lock()
	defer a.Unlock()
	id := a.nextSubID
	a.nextSubID++
	a.lifeSubs[id] = h
	return &Subscription{cancel: func() {
		a.Lock()
		delete(a.lifeSubs, id)
		a.Unlock()
	}}
}

func (a *Adapter) emit(ev Lifecycle) {
	a.Lock()
	handlers := make([]LifecycleHandler, 0, len(a.lifeSubs))
	for _, h := range a.lifeSubs {
		handlers = append(handlers, h)
	}
	a.Unlock()

	glog.V(5).Infof("emit(): lifecycle %s, sid: %s", ev.Kind, a.sid)
	for _, h := range handlers {
		h(ev)
	}
}

func (a *Adapter) dispatch(msg *wire.ServerMsg) {
	a.Lock()
	handlers := make([]EventHandler, 0, len(a.subs))
	for _, h := range a.subs {
		handlers = append(handlers, h)
	}
	a.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Run dials and serves the connection until ctx is done, reconnecting with
// backoff. Every connect and reconnect re-sends the authenticate command:
// the server drops auth state across connections.
func (a *Adapter) Run(ctx context.Context) {
	backoff := BackoffMinInterval
	for attempt := 0; ; attempt++ {
		conn, _, err := a.dialer.DialContext(ctx, a.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Errorf("Run(): dial `%s` error: %v", a.url, err)
			a.emit(Lifecycle{Kind: ConnectError, Reason: err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = BackoffMinInterval

		if attempt == 0 {
			a.emit(Lifecycle{Kind: Connected})
		} else {
			a.emit(Lifecycle{Kind: Reconnected, Attempt: attempt})
		}

		reason := a.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		a.emit(Lifecycle{Kind: Disconnected, Reason: reason})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * BackoffMultiplier)
	if next > BackoffMaxInterval {
		next = BackoffMaxInterval
	}
	return next
}

// serve owns one connection: it authenticates, then pumps the send and
// receive loops until either fails. Returns the disconnect reason.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) string {
	sendChan := make(chan *wire.ClientMsg, 16)

	a.Lock()
	a.conn = conn
	a.connected = true
	a.authed = false
	a.sendChan = sendChan
	a.Unlock()

	defer func() {
		a.Lock()
		a.conn = nil
		a.connected = false
		a.authed = false
		a.sendChan = nil
		a.Unlock()
		conn.Close()
	}()

	// Authenticate before any other traffic is trusted.
	if err := writeMsg(conn, &wire.ClientMsg{Authenticate: &wire.Authenticate{Token: a.token}}); err != nil {
		return "write authenticate: " + err.Error()
	}

	errChan := make(chan string, 2)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		errChan <- a.recvLoop(conn)
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		errChan <- a.sendLoop(ctx, conn, sendChan)
	}()

	reason := <-errChan
	conn.Close() // unblocks the other loop
	<-errChan
	return reason
}

func (a *Adapter) recvLoop(conn *websocket.Conn) string {
	defer glog.V(5).Infof("recvLoop(): exited, sid: %s", a.sid)

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "read: " + err.Error()
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wire.ServerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed frames are dropped, never fatal.
			glog.Errorf("recvLoop(): bad frame: %s, err: %v", string(raw), err)
			continue
		}

		if v := msg.Authenticated; v != nil {
			a.Lock()
			a.authed = true
			a.Unlock()
			a.emit(Lifecycle{Kind: Authenticated})
			continue
		}
		if v := msg.AuthError; v != nil {
			glog.Errorf("recvLoop(): authentication rejected: %s", v.Reason)
			a.emit(Lifecycle{Kind: AuthError, Reason: v.Reason})
			continue
		}

		if glog.V(5) {
			glog.Infof("recvLoop(): incoming message: %s", string(raw))
		}
		a.dispatch(&msg)
	}
}

func (a *Adapter) sendLoop(ctx context.Context, conn *websocket.Conn, sendChan <-chan *wire.ClientMsg) string {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, sid: %s", a.sid)
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return "context done"
		case msg := <-sendChan:
			if err := writeMsg(conn, msg); err != nil {
				glog.Errorf("sendLoop(): write error: %v", err)
				return "write: " + err.Error()
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(): ping error: %v", err)
				return "ping: " + err.Error()
			}
			// Heartbeat rides the ping cadence once authenticated.
			if a.IsReady() {
				if err := writeMsg(conn, &wire.ClientMsg{Heartbeat: &wire.Heartbeat{SentAt: time.Now().UnixMilli()}}); err != nil {
					glog.Errorf("sendLoop(): heartbeat error: %v", err)
					return "heartbeat: " + err.Error()
				}
			}
		}
	}
}

func writeMsg(conn *websocket.Conn, msg *wire.ClientMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}

// IsReady reports connected-and-authenticated.
func (a *Adapter) IsReady() bool {
	a.Lock()
	defer a.Unlock()
	return a.connected && a.authed
}

// send enqueues one command. Dropped silently (logged at V(5)) while not
// connected-and-authenticated, or when the send buffer is full: this layer
// gives no delivery guarantee.
func (a *Adapter) send(msg *wire.ClientMsg) {
	a.Lock()
	ch := a.sendChan
	ready := a.connected && a.authed
	a.Unlock()

	if !ready || ch == nil {
		glog.V(5).Infof("send(): not ready, dropped: %+v", msg)
		return
	}
	select {
	case ch <- msg:
	default:
		glog.V(5).Infof("send(): buffer full, dropped: %+v", msg)
	}
}
