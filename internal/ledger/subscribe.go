package ledger

import (
	"sync"

	"github.com/rpggio/fundinghub/internal/domain/chain"
)

type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan chain.Log
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: map[int]chan chain.Log{}}
}

func (b *broadcaster) subscribe(buffer int) (<-chan chain.Log, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan chain.Log, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *broadcaster) publish(logs []chain.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range logs {
		for _, ch := range b.subs {
			select {
			case ch <- l:
			default:
			}
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
