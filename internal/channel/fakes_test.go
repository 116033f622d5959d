package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mrcyclo/laravel-wave-client/internal/transport"
)

type fakeConn struct {
	id string

	mu           sync.Mutex
	subscribed   map[string]bool
	unsubscribes int
	published    []transport.Envelope
	handlers     map[string]map[string][]transport.Handler
	lifecycle    map[string][]transport.LifecycleFunc
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:         id,
		subscribed: make(map[string]bool),
		handlers:   make(map[string]map[string][]transport.Handler),
		lifecycle:  make(map[string][]transport.LifecycleFunc),
	}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Subscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[channel] = true
	return nil
}

func (f *fakeConn) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
	delete(f.subscribed, channel)
	return nil
}

func (f *fakeConn) Publish(channel, event string, data any) error {
	env, err := transport.NewEnvelope(channel, event, data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
	return nil
}

func (f *fakeConn) Bind(channel, event string, h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[channel] == nil {
		f.handlers[channel] = make(map[string][]transport.Handler)
	}
	f.handlers[channel][event] = append(f.handlers[channel][event], h)
}

func (f *fakeConn) UnbindEvent(channel, event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[channel], event)
}

func (f *fakeConn) UnbindChannel(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
}

func (f *fakeConn) OnLifecycle(event string, fn transport.LifecycleFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle[event] = append(f.lifecycle[event], fn)
}

func (f *fakeConn) emit(channel, event string, data any) {
	env, _ := transport.NewEnvelope(channel, event, data)
	f.mu.Lock()
	hs := append([]transport.Handler(nil), f.handlers[channel][event]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(env)
	}
}

func (f *fakeConn) isSubscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[channel]
}

func (f *fakeConn) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes
}

func (f *fakeConn) bound(channel, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[channel][event])
}

type result struct {
	body []byte
	err  error
}

type reqCall struct {
	seq      int64
	method   string
	endpoint string
	channel  string
	params   map[string]string
	clientID string
	token    string
}

// fakeRequester blocks Authorize until the test releases it, and answers Get
// and Delete from canned results.
type fakeRequester struct {
	seq       atomic.Int64
	authorize chan result

	mu       sync.Mutex
	settleAt int64
	get      result
	del      result
	calls    []reqCall
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{authorize: make(chan result, 1)}
}

func (f *fakeRequester) record(c reqCall) {
	c.seq = f.seq.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeRequester) Authorize(ctx context.Context, endpoint, channel string) ([]byte, error) {
	f.record(reqCall{method: "AUTH", endpoint: endpoint, channel: channel})
	select {
	case r := <-f.authorize:
		f.mu.Lock()
		f.settleAt = f.seq.Add(1)
		f.mu.Unlock()
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeRequester) Get(_ context.Context, endpoint string, params map[string]string) ([]byte, error) {
	f.record(reqCall{method: "GET", endpoint: endpoint, params: params})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get.body, f.get.err
}

func (f *fakeRequester) Delete(_ context.Context, endpoint string, params map[string]string) ([]byte, error) {
	f.record(reqCall{method: "DELETE", endpoint: endpoint, params: params})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.del.body, f.del.err
}

func (f *fakeRequester) Beacon(clientID, token, endpoint string, params map[string]string, method string) {
	f.record(reqCall{method: "BEACON " + method, endpoint: endpoint, params: params, clientID: clientID, token: token})
}

func (f *fakeRequester) callsOf(method string) []reqCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reqCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRequester) settledSeq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settleAt
}
