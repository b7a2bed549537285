package cartclient

import "sync"

// ChangeEvent says a user's cart changed on the server.
type ChangeEvent struct {
	UserEmail string
	Source    string
}

// Bus fans "cart changed" signals out to independent subscribers. Each
// subscriber has a one-slot mailbox; a signal arriving while one is still
// pending is coalesced into it, so Publish never waits on a slow subscriber.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]chan ChangeEvent
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe runs fn for every signal on its own goroutine until the returned
// func is called.
func (b *Bus) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	ch := make(chan ChangeEvent, 1)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(ev ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
