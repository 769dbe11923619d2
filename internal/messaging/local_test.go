package messaging

import (
	"sync"
	"testing"
	"time"
)

func TestLocalBus_DeliversInOrder(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	err := bus.Subscribe(SubjectMatchFound, func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	for _, msg := range []string{"a", "b", "c"} {
		if err := bus.Publish(SubjectMatchFound, []byte(msg)); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected in-order delivery, got %v", got)
	}
}

func TestLocalBus_SubjectIsolation(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	received := make(chan string, 2)
	bus.Subscribe(SubjectBanned, func(data []byte) {
		received <- string(data)
	})

	bus.Publish(SubjectMatchTimeout, []byte("wrong subject"))
	bus.Publish(SubjectBanned, []byte("right subject"))

	select {
	case msg := <-received:
		if msg != "right subject" {
			t.Errorf("received message from wrong subject: %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestLocalBus_FanOut(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		bus.Subscribe(SubjectChatEnded, func(data []byte) {
			wg.Done()
		})
	}

	bus.Publish(SubjectChatEnded, []byte("x"))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestLocalBus_CloseIsIdempotent(t *testing.T) {
	bus := NewLocalBus()
	bus.Subscribe(SubjectModAlert, func([]byte) {})
	bus.Close()
	bus.Close()

	if err := bus.Publish(SubjectModAlert, []byte("x")); err == nil {
		t.Error("expected error publishing on a closed bus")
	}
}
