package bridge

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err error
	ch  chan struct{}
}

func newFakeToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, ch: ch}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.ch }
func (t *fakeToken) Error() error                   { return t.err }

type fakeBus struct {
	mu        sync.Mutex
	published [][]byte
	topics    []string
	failFirst int
	calls     int
}

func (b *fakeBus) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failFirst {
		return newFakeToken(errors.New("not connected"))
	}
	b.published = append(b.published, payload.([]byte))
	b.topics = append(b.topics, topic)
	return newFakeToken(nil)
}

func newTestBridge(bus *fakeBus) *Bridge {
	b := New(bus, "alert")
	b.backoff = time.Millisecond
	return b
}

func TestHandleNotify_Forwards(t *testing.T) {
	bus := &fakeBus{}
	srv := httptest.NewServer(newTestBridge(bus).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/notify", "application/json", strings.NewReader(`{"data":{"alarm_list":[]}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, bus.published, 1)
	assert.JSONEq(t, `{"data":{"alarm_list":[]}}`, string(bus.published[0]))
	assert.Equal(t, "alert", bus.topics[0])
}

func TestHandleNotify_RejectsNonJSON(t *testing.T) {
	bus := &fakeBus{}
	srv := httptest.NewServer(newTestBridge(bus).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/notify", "text/plain", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, bus.calls)
}

func TestHandleNotify_RetriesThenSucceeds(t *testing.T) {
	bus := &fakeBus{failFirst: 2}
	srv := httptest.NewServer(newTestBridge(bus).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/notify", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, bus.calls)
	assert.Len(t, bus.published, 1)
}

func TestHandleNotify_BusDown(t *testing.T) {
	bus := &fakeBus{failFirst: 100}
	srv := httptest.NewServer(newTestBridge(bus).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/notify", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 3, bus.calls)
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestBridge(&fakeBus{}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
