package messaging

import (
	"fmt"
	"log"
	"sync"
)

// localBufferSize bounds the per-subscriber delivery queue. Publishing to a
// subscriber whose queue is full drops the message with a log line rather
// than blocking the publisher.
const localBufferSize = 256

// LocalBus is the in-process Bus used when no NATS server is configured.
// Each subscriber gets a buffered queue drained by its own goroutine, so
// delivery order is preserved per subscriber and publishers never block on
// slow handlers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	closed bool
	wg     sync.WaitGroup
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers data to every subscriber of the subject. The payload is
// copied so publishers may reuse their buffer.
func (b *LocalBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("localbus: publish on closed bus")
	}
	for _, ch := range b.subs[subject] {
		msg := make([]byte, len(data))
		copy(msg, data)
		select {
		case ch <- msg:
		default:
			log.Printf("[localbus] subscriber queue full, dropping message on %s", subject)
		}
	}
	return nil
}

// Subscribe registers a handler for the subject.
func (b *LocalBus) Subscribe(subject string, handler func(data []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("localbus: subscribe on closed bus")
	}
	ch := make(chan []byte, localBufferSize)
	b.subs[subject] = append(b.subs[subject], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ch {
			handler(msg)
		}
	}()
	return nil
}

// Close stops delivery and waits for in-flight handlers to return.
func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan []byte)
	b.mu.Unlock()

	b.wg.Wait()
}
