package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newChanBus() *chanBus { return &chanBus{subs: map[string]chan []byte{}} }

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs[channel] = ch
	return ch, nil
}

func startHub(t *testing.T) (*chanBus, *websocket.Conn, *Hub) {
	t.Helper()
	bus := newChanBus()
	snap := func() domain.Snapshot { return domain.Snapshot{Account: "0xabc", ChainID: 52085143} }
	hub := NewHub(bus, snap, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
		srv.Close()
	})
	return bus, conn, hub
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHubSendsInitialStateThenForwards(t *testing.T) {
	bus, conn, hub := startHub(t)

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelState, env.Channel)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, "0xabc", snap.Account)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelToast, []byte(`{"id":"t1","kind":"success"}`)))
	env = readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelToast, env.Channel)
	assert.JSONEq(t, `{"id":"t1","kind":"success"}`, string(env.Payload))
}

func TestHubUnsubscribe(t *testing.T) {
	bus, conn, _ := startHub(t)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelState}}))
	// the read pump applies the change asynchronously
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelState, []byte(`{"account":"0xdef"}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelToast, []byte(`"plain"`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelToast, env.Channel)
}

func TestHubWrapsNonJSONPayloads(t *testing.T) {
	bus, conn, _ := startHub(t)
	readEnvelope(t, conn)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelToast, []byte("not json")))
	env := readEnvelope(t, conn)
	assert.Equal(t, `"not json"`, string(env.Payload))
}

