// Package notifier implements the WebSocket Notifier (§4.2), grounded on
// the teacher's internal/server/app/event_broadcaster_test.go shape
// (RegisterClient/UnregisterClient/GetClientCount/OnEvent, drop-on-full
// buffered channels, per-session isolation) generalized from per-chat-
// session fan-out onto the single global observer set §4.2 describes —
// every task-orchestration observer watches the same task stream, so this
// Notifier has one implicit "session": the whole server.
package notifier

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
)

// Conn is the minimal surface the Notifier needs from an observer
// connection, satisfied by *websocket.Conn in production and by a fake in
// tests.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Message wire shapes (§3 "Conversation with Notifier").
type snapshotMessage struct {
	Type  string       `json:"type"`
	Tasks []*task.Task `json:"tasks"`
}

type updateMessage struct {
	Type string     `json:"type"`
	Task *task.Task `json:"task"`
}

type deleteMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

const (
	outboundBuffer = 64
)

type observer struct {
	conn Conn
	out  chan []byte
	done chan struct{}
}

// Notifier maintains the live observer set and fans out task state
// changes. Safe for concurrent use.
type Notifier struct {
	logger logging.Logger

	mu        sync.Mutex
	observers map[Conn]*observer

	onDrop func(conn Conn) // test hook
}

func New(logger logging.Logger) *Notifier {
	return &Notifier{
		logger:    logging.OrNop(logger),
		observers: make(map[Conn]*observer),
	}
}

// Connect adds conn to the live set and starts its write pump. Each
// observer gets its own bounded outbound queue so one slow client can't
// stall broadcasts to the rest (§4.2 "connections that raise on send are
// collected and disconnected after the iteration").
func (n *Notifier) Connect(conn Conn) {
	obs := &observer{conn: conn, out: make(chan []byte, outboundBuffer), done: make(chan struct{})}
	n.mu.Lock()
	n.observers[conn] = obs
	n.mu.Unlock()
	go n.pump(conn, obs)
}

// Disconnect removes conn if present; idempotent.
func (n *Notifier) Disconnect(conn Conn) {
	n.mu.Lock()
	obs, ok := n.observers[conn]
	if ok {
		delete(n.observers, conn)
	}
	n.mu.Unlock()
	if ok {
		close(obs.done)
		_ = conn.Close()
	}
}

// GetClientCount reports the number of live observers.
func (n *Notifier) GetClientCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}

// SendSnapshot unicasts the initial state to conn. Unlike broadcast,
// send_snapshot failures propagate to the caller (§9's resolved open
// question), so the HTTP/WS handler can close the connection itself
// instead of the Notifier silently dropping it twice.
func (n *Notifier) SendSnapshot(conn Conn, tasks []*task.Task) error {
	if err := conn.WriteJSON(snapshotMessage{Type: "snapshot", Tasks: tasks}); err != nil {
		return apperrors.NewNotifierError(err, "send_snapshot failed")
	}
	return nil
}

// BroadcastUpdate fans out an update message to every live observer.
func (n *Notifier) BroadcastUpdate(t *task.Task) {
	n.broadcast(updateMessage{Type: "update", Task: t})
}

// BroadcastDelete fans out a delete message.
func (n *Notifier) BroadcastDelete(taskID string) {
	n.broadcast(deleteMessage{Type: "delete", TaskID: taskID})
}

// BroadcastSnapshot fans out a full snapshot, used for cancel_all/
// delete_all's single-commit-single-emission rule (§4.1).
func (n *Notifier) BroadcastSnapshot(tasks []*task.Task) {
	n.broadcast(snapshotMessage{Type: "snapshot", Tasks: tasks})
}

// broadcast iterates the live set, enqueuing msg on each observer's own
// queue (preserving per-observer order, §4.2's ordering guarantee).
// Observers whose queue is full are dropped rather than blocking the
// caller — an at-most-once, no-retry, no-replay delivery guarantee.
func (n *Notifier) broadcast(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("notifier: marshal broadcast message failed: %v", err)
		return
	}
	n.mu.Lock()
	targets := make([]*observer, 0, len(n.observers))
	for _, obs := range n.observers {
		targets = append(targets, obs)
	}
	n.mu.Unlock()

	var dead []Conn
	for _, obs := range targets {
		select {
		case obs.out <- payload:
		default:
			dead = append(dead, obs.conn)
		}
	}
	for _, conn := range dead {
		n.logger.Warn("notifier: dropping observer, outbound queue full")
		n.Disconnect(conn)
		if n.onDrop != nil {
			n.onDrop(conn)
		}
	}
}

// pump is the per-observer write goroutine; it serializes writes to conn
// so messages are delivered in broadcast order for that one observer.
func (n *Notifier) pump(conn Conn, obs *observer) {
	for {
		select {
		case <-obs.done:
			return
		case payload := <-obs.out:
			var raw json.RawMessage = payload
			if err := conn.WriteJSON(raw); err != nil {
				n.logger.Warn("notifier: write failed, dropping observer: %v", err)
				n.Disconnect(conn)
				return
			}
		}
	}
}

// IsCloseError reports whether err is a normal websocket close, used by
// the HTTP layer to decide whether a read-loop exit is noteworthy.
func IsCloseError(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
