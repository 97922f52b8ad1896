package claims

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIssueLocker_SerializesSameIssue(t *testing.T) {
	l := NewIssueLocker()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("I1")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", got)
	}
	if held := l.Held(); held != 0 {
		t.Fatalf("expected entries released, got %d", held)
	}
}

func TestIssueLocker_IndependentIssues(t *testing.T) {
	l := NewIssueLocker()
	unlockA := l.Lock("A")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("B")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked behind A")
	}
	if held := l.Held(); held != 1 {
		t.Fatalf("expected only A held, got %d", held)
	}
}
