package notifier

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

type fakeConn struct {
	mu      sync.Mutex
	written []interface{}
	failing bool
	closed  bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("write failed")
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestConnectDisconnectTracksClientCount(t *testing.T) {
	n := New(nil)
	conn := &fakeConn{}
	n.Connect(conn)
	require.Equal(t, 1, n.GetClientCount())

	n.Disconnect(conn)
	require.Equal(t, 0, n.GetClientCount())
	require.True(t, conn.closed)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	n := New(nil)
	conn := &fakeConn{}
	n.Connect(conn)
	n.Disconnect(conn)
	require.NotPanics(t, func() { n.Disconnect(conn) })
}

func TestBroadcastUpdateReachesLiveObserver(t *testing.T) {
	n := New(nil)
	conn := &fakeConn{}
	n.Connect(conn)

	n.BroadcastUpdate(&task.Task{ID: "t1", Status: task.StatusRunning})

	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, time.Millisecond)
}

func TestSendSnapshotFailurePropagates(t *testing.T) {
	n := New(nil)
	conn := &fakeConn{failing: true}

	err := n.SendSnapshot(conn, nil)
	require.Error(t, err)
}

func TestObserverReconnectGetsFreshSnapshot(t *testing.T) {
	n := New(nil)
	a := &fakeConn{}
	n.Connect(a)
	n.Disconnect(a)

	b := &fakeConn{}
	n.Connect(b)
	require.NoError(t, n.SendSnapshot(b, []*task.Task{{ID: "t1"}}))
	require.Equal(t, 1, b.count())

	n.BroadcastUpdate(&task.Task{ID: "t1", Status: task.StatusCompleted})
	require.Eventually(t, func() bool { return b.count() == 2 }, time.Second, time.Millisecond)
}
