package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mrcyclo/laravel-wave-client/internal/channel"
	"github.com/mrcyclo/laravel-wave-client/internal/lifecycle"
	"github.com/mrcyclo/laravel-wave-client/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu           sync.Mutex
	subscribed   map[string]bool
	disconnected bool
}

func newStubConn() *stubConn { return &stubConn{subscribed: make(map[string]bool)} }

func (s *stubConn) ID() string { return "sock-1" }
func (s *stubConn) Subscribe(ch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[ch] = true
	return nil
}
func (s *stubConn) Unsubscribe(ch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, ch)
	return nil
}
func (s *stubConn) Publish(string, string, any) error           { return nil }
func (s *stubConn) Bind(string, string, transport.Handler)      {}
func (s *stubConn) UnbindEvent(string, string)                  {}
func (s *stubConn) UnbindChannel(string)                        {}
func (s *stubConn) OnLifecycle(string, transport.LifecycleFunc) {}
func (s *stubConn) Disconnect()                                 { s.disconnected = true }
func (s *stubConn) has(ch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[ch]
}

type stubRequester struct {
	mu      sync.Mutex
	auths   []string
	deletes []string
	delErr  error
}

func (s *stubRequester) Authorize(_ context.Context, _ string, ch string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths = append(s.auths, ch)
	return []byte(`{"_token":"t","users":[{"id":1}]}`), nil
}
func (s *stubRequester) Get(context.Context, string, map[string]string) ([]byte, error) {
	return []byte(`[]`), nil
}
func (s *stubRequester) Delete(_ context.Context, _ string, params map[string]string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, params["channel_name"])
	return nil, s.delErr
}
func (s *stubRequester) Beacon(string, string, string, map[string]string, string) {}

func newTestConnector(t *testing.T) (*Connector, *stubConn, *stubRequester, *lifecycle.Notifier) {
	t.Helper()
	conn := newStubConn()
	req := &stubRequester{}
	n := lifecycle.NewNotifier()
	return New(context.Background(), conn, req, n, channel.Options{Endpoint: "http://localhost/api"}), conn, req, n
}

func TestJoinCachesPresenceChannel(t *testing.T) {
	c, conn, req, n := newTestConnector(t)

	p := c.Join("room.1")
	assert.Same(t, p, c.Join("room.1"))
	assert.Same(t, p, c.Join("presence-room.1"))
	assert.Equal(t, "presence-room.1", p.Name())
	assert.True(t, conn.has("presence-room.1"))
	assert.Equal(t, 1, n.Len())

	require.Eventually(t, func() bool { return p.State() == channel.Joined }, time.Second, 5*time.Millisecond)
	req.mu.Lock()
	assert.Equal(t, []string{"presence-room.1"}, req.auths)
	req.mu.Unlock()
}

func TestPrivateAndPublicNames(t *testing.T) {
	c, conn, _, _ := newTestConnector(t)

	assert.Equal(t, "private-orders", c.Private("orders").Name())
	assert.Equal(t, "orders", c.Channel("orders").Name())
	assert.Same(t, c.Private("orders"), c.Private("private-orders"))
	assert.True(t, conn.has("private-orders"))
	assert.True(t, conn.has("orders"))
}

func TestLeaveAllVariants(t *testing.T) {
	c, conn, req, n := newTestConnector(t)

	c.Channel("room.1")
	c.Private("room.1")
	p := c.Join("room.1")

	select {
	case <-c.Leave("room.1"):
	case <-time.After(time.Second):
		t.Fatal("leave did not finish")
	}

	assert.False(t, conn.has("room.1"))
	assert.False(t, conn.has("private-room.1"))
	assert.False(t, conn.has("presence-room.1"))
	assert.Equal(t, 0, n.Len())

	req.mu.Lock()
	assert.Equal(t, []string{"presence-room.1"}, req.deletes)
	req.mu.Unlock()

	assert.NotSame(t, p, c.Join("room.1"))
}

func TestFailedLeaveKeepsPresenceChannel(t *testing.T) {
	c, conn, req, n := newTestConnector(t)
	req.delErr = errors.New("server down")

	p := c.Join("room.1")
	require.Eventually(t, func() bool { return p.State() == channel.Joined }, time.Second, 5*time.Millisecond)

	select {
	case <-c.Leave("room.1"):
	case <-time.After(time.Second):
		t.Fatal("leave did not finish")
	}

	assert.False(t, p.Left())
	assert.True(t, conn.has("presence-room.1"))
	assert.Same(t, p, c.Join("room.1"))
	assert.Equal(t, 1, n.Len())

	req.mu.Lock()
	assert.Len(t, req.auths, 1)
	req.mu.Unlock()

	req.mu.Lock()
	req.delErr = nil
	req.mu.Unlock()
	<-c.Leave("room.1")

	assert.True(t, p.Left())
	assert.Equal(t, 0, n.Len())
	assert.NotSame(t, p, c.Join("room.1"))
}

func TestDisconnect(t *testing.T) {
	c, conn, _, _ := newTestConnector(t)
	c.Disconnect()
	assert.True(t, conn.disconnected)
	assert.Equal(t, "sock-1", c.SocketID())
}
