package bus

import (
	"context"
	"path"
	"sync"
)

// Memory is an in-process bus with the same semantics as Client. Used when
// Redis is disabled and in tests.
type Memory struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	pattern string
	out     chan []byte
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

// Publish delivers payload to every matching subscriber. Slow subscribers
// drop messages rather than block the publisher.
func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for s := range m.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.out <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription that ends when ctx is done.
func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &memorySub{pattern: channel, out: make(chan []byte, 256)}

	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		close(s.out)
	}()

	return s.out, nil
}

var _ Bus = (*Memory)(nil)
