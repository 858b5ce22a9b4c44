package buffer

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](4)

	for i := 0; i < 3; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	for i := 0; i < 3; i++ {
		v, ok := q.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("received %d, want %d", v, i)
		}
	}

	if _, ok := q.TryReceive(); ok {
		t.Error("TryReceive() on empty queue returned true")
	}
}

func TestQueue_GrowsWhenFull(t *testing.T) {
	q := NewQueue[int](2)

	// Wrap the ring before growing so the unwrap path is exercised.
	q.Send(0)
	q.Send(1)
	q.TryReceive()
	for i := 2; i < 10; i++ {
		q.Send(i)
	}

	stats := q.Stats()
	if stats.Capacity < 9 {
		t.Errorf("Capacity = %d, want >= 9", stats.Capacity)
	}
	if stats.Resizes == 0 {
		t.Error("expected at least one resize")
	}

	for want := 1; want < 10; want++ {
		v, ok := q.TryReceive()
		if !ok || v != want {
			t.Fatalf("TryReceive() = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
}

func TestQueue_DrainTo(t *testing.T) {
	q := NewQueue[string](8)
	for _, s := range []string{"a", "b", "c", "d"} {
		q.Send(s)
	}

	got := q.DrainTo(3)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("DrainTo(3) = %v", got)
	}

	got = q.DrainTo(0)
	if len(got) != 1 || got[0] != "d" {
		t.Errorf("DrainTo(0) = %v", got)
	}

	if got := q.DrainTo(0); got != nil {
		t.Errorf("DrainTo on empty = %v, want nil", got)
	}
}

func TestQueue_CloseDrainsRemaining(t *testing.T) {
	q := NewQueue[int](4)
	q.Send(1)
	q.Send(2)
	q.Close()

	if q.Send(3) {
		t.Error("Send after Close should return false")
	}
	if !q.Closed() {
		t.Error("Closed() = false after Close")
	}

	for _, want := range []int{1, 2} {
		v, ok := q.Receive()
		if !ok || v != want {
			t.Fatalf("Receive() = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
	if _, ok := q.Receive(); ok {
		t.Error("Receive on closed empty queue returned true")
	}
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := NewQueue[int](1)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	go func() {
		defer wg.Done()
		got, _ = q.Receive()
	}()

	time.Sleep(10 * time.Millisecond)
	q.Send(42)
	wg.Wait()

	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestQueue_CloseWakesReceivers(t *testing.T) {
	q := NewQueue[int](1)

	done := make(chan bool)
	go func() {
		_, ok := q.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive returned ok after Close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("receiver not woken by Close")
	}
}

func TestQueue_ConcurrentSend(t *testing.T) {
	q := NewQueue[int](1)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Send(i)
			}
		}()
	}
	wg.Wait()

	if q.Len() != 800 {
		t.Errorf("Len() = %d, want 800", q.Len())
	}
	if s := q.Stats(); s.Sent != 800 {
		t.Errorf("Sent = %d, want 800", s.Sent)
	}
}
