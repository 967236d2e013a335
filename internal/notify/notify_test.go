package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, title+": "+message)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

type memBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, []string{"toast_error"}, discard())

	require.NoError(t, n.Notify(context.Background(), "toast_success", "t", "ignored"))
	require.NoError(t, n.Notify(context.Background(), "toast_error", "t", "kept"))
	assert.Equal(t, []string{"t: kept"}, s.msgs)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("down")}
	n := NewNotifier([]Sender{bad, ok}, nil, discard())

	err := n.Notify(context.Background(), "any", "t", "m")
	assert.Error(t, err)
	assert.Len(t, ok.msgs, 1, "healthy sender still receives the message")
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "e", "t", "m"))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestToasterLifecycle(t *testing.T) {
	bus := &memBus{}
	sender := &recordingSender{}
	toaster := NewToaster(10, bus, NewNotifier([]Sender{sender}, nil, discard()), discard())
	ctx := context.Background()

	id := toaster.Loading(ctx, "Creating pool...")
	recent := toaster.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, domain.ToastLoading, recent[0].Kind)

	toaster.Success(ctx, id, "Pool created successfully")
	recent = toaster.Recent()
	require.Len(t, recent, 1, "success replaces the loading toast")
	assert.Equal(t, domain.ToastSuccess, recent[0].Kind)
	assert.Equal(t, "Pool created successfully", recent[0].Message)

	assert.Len(t, bus.msgs[domain.ChannelToast], 2)
	assert.Equal(t, []string{"buzzpool: Pool created successfully"}, sender.msgs)

	var published domain.Toast
	require.NoError(t, json.Unmarshal(bus.msgs[domain.ChannelToast][1], &published))
	assert.Equal(t, id, published.ID)
}

func TestToasterHistoryIsBounded(t *testing.T) {
	toaster := NewToaster(3, nil, nil, discard())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		toaster.Error(ctx, "", "failed")
	}
	assert.Len(t, toaster.Recent(), 3)
}
