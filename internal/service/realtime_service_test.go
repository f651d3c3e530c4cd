package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
)

// fakeConn is an in-memory RealtimeConn. Reads block until a frame is queued
// with push or the connection closes.
type fakeConn struct {
	mu       sync.Mutex
	incoming chan []byte
	written  []interface{}
	failSend bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 8)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.incoming
	if !ok {
		return 0, nil, context.Canceled
	}
	return textMessage, data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return context.Canceled
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return context.Canceled
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.written = append(c.written, json.RawMessage(payload))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeConn) push(data string) {
	c.incoming <- []byte(data)
}

func (c *fakeConn) frames() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interface{}, len(c.written))
	copy(out, c.written)
	return out
}

func newTestRealtime() *realtimeService {
	return NewRealtimeService(nil, "", nil, testLogger()).(*realtimeService)
}

func serve(svc *realtimeService, conn *fakeConn, spaceID, userID string) {
	go svc.ServeConnection(conn, RealtimeConnectionOptions{
		UserID:  userID,
		SpaceID: spaceID,
		Context: context.Background(),
	})
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}

func TestRealtimeConnectionAccounting(t *testing.T) {
	svc := newTestRealtime()

	first := newFakeConn()
	second := newFakeConn()
	serve(svc, first, "space-1", "user-a")
	serve(svc, second, "space-1", "user-b")

	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 2 })
	require.Zero(t, svc.ConnectionCount("space-2"))

	require.NoError(t, first.Close())
	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 1 })

	require.NoError(t, second.Close())
	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 0 })
}

func TestPublishReachesOnlyTheSpace(t *testing.T) {
	svc := newTestRealtime()

	inSpace := newFakeConn()
	elsewhere := newFakeConn()
	serve(svc, inSpace, "space-1", "user-a")
	serve(svc, elsewhere, "space-2", "user-b")
	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 1 && svc.ConnectionCount("space-2") == 1 })

	svc.Publish(context.Background(), "space-1", dto.NewRealtimeEvent(dto.EventCardUpdated, map[string]interface{}{
		"card_id": "c-1",
	}))

	waitFor(t, func() bool { return len(inSpace.frames()) == 1 })
	require.Empty(t, elsewhere.frames())

	raw, ok := inSpace.frames()[0].(json.RawMessage)
	require.True(t, ok)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, dto.EventCardUpdated, decoded["type"])
	require.Equal(t, "c-1", decoded["card_id"])
}

func TestFailedSendRemovesOnlyThatConnection(t *testing.T) {
	svc := newTestRealtime()

	healthy := newFakeConn()
	broken := newFakeConn()
	serve(svc, healthy, "space-1", "user-a")
	serve(svc, broken, "space-1", "user-b")
	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 2 })

	// Fill the broken client's buffer so the next broadcast cannot queue.
	broken.mu.Lock()
	broken.failSend = true
	broken.mu.Unlock()
	for i := 0; i < realtimeSendBufferSize+1; i++ {
		svc.Publish(context.Background(), "space-1", dto.NewRealtimeEvent(dto.EventCardUpdated, nil))
	}

	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 1 })

	// The healthy connection keeps receiving.
	svc.Publish(context.Background(), "space-1", dto.NewRealtimeEvent(dto.EventCardMoved, nil))
	waitFor(t, func() bool { return len(healthy.frames()) >= 2 })
}

func TestPingAnsweredWithPong(t *testing.T) {
	svc := newTestRealtime()

	conn := newFakeConn()
	serve(svc, conn, "space-1", "user-a")
	waitFor(t, func() bool { return svc.ConnectionCount("space-1") == 1 })

	conn.push("ping")

	waitFor(t, func() bool {
		for _, frame := range conn.frames() {
			if text, ok := frame.(string); ok && text == livenessPong {
				return true
			}
		}
		return false
	})
}

func TestPublishToEmptySpaceIsNoop(t *testing.T) {
	svc := newTestRealtime()
	svc.Publish(context.Background(), "nobody-home", dto.NewRealtimeEvent(dto.EventCardDeleted, nil))
	require.Zero(t, svc.ConnectionCount("nobody-home"))
}
