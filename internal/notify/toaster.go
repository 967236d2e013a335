package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// Events forwarded to the Notifier when a toast settles.
const (
	EventToastSuccess = "toast_success"
	EventToastError   = "toast_error"
)

// DefaultToastHistory is how many toasts Recent keeps when no size is given.
const DefaultToastHistory = 50

// Toaster drives the loading → success/error lifecycle of user feedback. Every
// state change is kept in a bounded history, published on the signal bus and,
// once settled, forwarded to the operator Notifier.
type Toaster struct {
	mu     sync.Mutex
	recent []domain.Toast
	size   int

	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewToaster creates a Toaster. bus and notifier may be nil.
func NewToaster(size int, bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Toaster {
	if size <= 0 {
		size = DefaultToastHistory
	}
	return &Toaster{
		size:     size,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "toaster")),
		now:      time.Now,
	}
}

// Loading opens a pending toast and returns its id.
func (t *Toaster) Loading(ctx context.Context, msg string) string {
	id := uuid.NewString()
	t.emit(ctx, domain.Toast{ID: id, Kind: domain.ToastLoading, Message: msg})
	return id
}

// Success replaces toast id with a success message.
func (t *Toaster) Success(ctx context.Context, id, msg string) {
	t.emit(ctx, domain.Toast{ID: id, Kind: domain.ToastSuccess, Message: msg})
	t.forward(ctx, EventToastSuccess, msg)
}

// Error replaces toast id with an error message. An empty id opens a new toast.
func (t *Toaster) Error(ctx context.Context, id, msg string) {
	if id == "" {
		id = uuid.NewString()
	}
	t.emit(ctx, domain.Toast{ID: id, Kind: domain.ToastError, Message: msg})
	t.forward(ctx, EventToastError, msg)
}

// Recent returns the latest toast state per id, oldest first.
func (t *Toaster) Recent() []domain.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Toast(nil), t.recent...)
}

func (t *Toaster) emit(ctx context.Context, toast domain.Toast) {
	toast.UpdatedAt = t.now().UTC()

	t.mu.Lock()
	replaced := false
	for i := range t.recent {
		if t.recent[i].ID == toast.ID {
			t.recent[i] = toast
			replaced = true
			break
		}
	}
	if !replaced {
		t.recent = append(t.recent, toast)
		if over := len(t.recent) - t.size; over > 0 {
			t.recent = append(t.recent[:0], t.recent[over:]...)
		}
	}
	t.mu.Unlock()

	t.logger.DebugContext(ctx, "toast",
		slog.String("id", toast.ID),
		slog.String("kind", string(toast.Kind)),
		slog.String("message", toast.Message),
	)

	if t.bus == nil {
		return
	}
	payload, err := json.Marshal(toast)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, domain.ChannelToast, payload); err != nil {
		t.logger.WarnContext(ctx, "notify: publish toast failed", slog.String("error", err.Error()))
	}
}

func (t *Toaster) forward(ctx context.Context, event, msg string) {
	if !t.notifier.Enabled() {
		return
	}
	if err := t.notifier.Notify(ctx, event, "buzzpool", msg); err != nil {
		t.logger.WarnContext(ctx, "forward toast failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
