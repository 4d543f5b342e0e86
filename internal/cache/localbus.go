package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// LocalBus is an in-process domain.SnapshotBus used when Redis is disabled.
// A subscription channel ending in "*" matches every channel with that
// prefix. Slow subscribers drop messages rather than block publishers.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[*localSub]struct{}
}

type localSub struct {
	pattern string
	ch      chan []byte
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[*localSub]struct{})}
}

// Publish delivers a copy of payload to every matching subscriber.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.matches(channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription that is closed when ctx is cancelled.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &localSub{pattern: channel, ch: make(chan []byte, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

func (s *localSub) matches(channel string) bool {
	if prefix, ok := strings.CutSuffix(s.pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return s.pattern == channel
}

var _ domain.SnapshotBus = (*LocalBus)(nil)
