package chain

import (
	"context"
	"sync"
)

// NonceLocker serializes nonce allocation and submission for one account key.
// Without it two concurrent actions would read the same pending nonce.
type NonceLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalNonceLocker is an in-process NonceLocker.
type LocalNonceLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalNonceLocker returns an empty LocalNonceLocker.
func NewLocalNonceLocker() *LocalNonceLocker {
	return &LocalNonceLocker{locks: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalNonceLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
