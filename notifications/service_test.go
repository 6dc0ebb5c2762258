package notifications

import (
	"testing"
	"time"
)

func TestNotify_Broadcast(t *testing.T) {
	s := NewService()
	a, unsubA := s.Subscribe()
	b, unsubB := s.Subscribe()
	defer unsubA()
	defer unsubB()

	s.NotifyToolActivated("ocr")

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			if e.Type != EventToolActivated || e.Timestamp == 0 {
				t.Errorf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestNotify_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewService()
	_, unsub := s.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.NotifyHistoryChanged()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestUnsubscribeAndShutdown(t *testing.T) {
	s := NewService()
	ch, unsub := s.Subscribe()
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	ch2, unsub2 := s.Subscribe()
	s.Shutdown()
	s.Shutdown()
	unsub2()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after shutdown")
	}
	if s.SubscriberCount() != 0 {
		t.Errorf("expected no subscribers, got %d", s.SubscriberCount())
	}

	ch3, _ := s.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("subscribing after shutdown should yield a closed channel")
	}
}
