package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	order []int
}

func (r *recorder) add(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, v)
}

func (r *recorder) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.order...)
}

func sleepAndRecord(r *recorder, d time.Duration, v int) func() error {
	return func() error {
		time.Sleep(d)
		r.add(v)
		return nil
	}
}

func TestSameKeyRunsInSubmissionOrder(t *testing.T) {
	s := New[string]()
	rec := &recorder{}

	c1 := s.Submit("guild", sleepAndRecord(rec, 50*time.Millisecond, 1))
	c2 := s.Submit("guild", sleepAndRecord(rec, 20*time.Millisecond, 2))
	c3 := s.Submit("guild", sleepAndRecord(rec, 10*time.Millisecond, 3))

	for _, c := range []<-chan error{c1, c2, c3} {
		if err := <-c; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := rec.get()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	s := New[string]()
	rec := &recorder{}

	start := time.Now()
	c1 := s.Submit("a", sleepAndRecord(rec, 50*time.Millisecond, 1))
	c2 := s.Submit("b", sleepAndRecord(rec, 50*time.Millisecond, 2))
	c3 := s.Submit("c", sleepAndRecord(rec, 50*time.Millisecond, 3))

	for _, c := range []<-chan error{c1, c2, c3} {
		if err := <-c; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(rec.get()) != 3 {
		t.Errorf("expected all 3 tasks to complete, got %v", rec.get())
	}
	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Errorf("different keys appear serialized: took %v", elapsed)
	}
}

func TestFailureIsIsolated(t *testing.T) {
	s := New[int]()
	rec := &recorder{}
	boom := errors.New("boom")

	c1 := s.Submit(7, func() error { rec.add(1); return nil })
	c2 := s.Submit(7, func() error { rec.add(2); return boom })
	c3 := s.Submit(7, func() error { rec.add(3); return nil })

	if err := <-c1; err != nil {
		t.Errorf("first caller: expected nil, got %v", err)
	}
	if err := <-c2; !errors.Is(err, boom) {
		t.Errorf("second caller: expected boom, got %v", err)
	}
	if err := <-c3; err != nil {
		t.Errorf("third caller: expected nil, got %v", err)
	}

	got := rec.get()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestPanicBecomesError(t *testing.T) {
	s := New[string]()

	err := s.Run("k", func() error { panic("kaboom") })
	if !errors.Is(err, ErrTaskPanicked) {
		t.Fatalf("expected ErrTaskPanicked, got %v", err)
	}

	// The chain keeps working after a panic.
	if err := s.Run("k", func() error { return nil }); err != nil {
		t.Errorf("expected nil after panic, got %v", err)
	}
}

func TestTaskNeverOverlapsSameKey(t *testing.T) {
	s := New[string]()
	var active, maxActive int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run("k", func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("expected at most 1 concurrent task, saw %d", got)
	}
}

func TestReentrantSubmitDoesNotDeadlock(t *testing.T) {
	s := New[string]()
	rec := &recorder{}
	var inner <-chan error

	err := s.Run("k", func() error {
		rec.add(1)
		inner = s.Submit("k", func() error {
			rec.add(2)
			return nil
		})
		return nil
	})
	if err != nil {
		t.Fatalf("outer: unexpected error: %v", err)
	}

	select {
	case err := <-inner:
		if err != nil {
			t.Fatalf("inner: unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("re-entrant task never ran")
	}

	got := rec.get()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestDrainedChainIsReleased(t *testing.T) {
	s := New[string]()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Run(key, func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := s.Len(); n != 0 {
		t.Errorf("expected 0 live chains, got %d", n)
	}
	if p := s.Pending("a"); p != 0 {
		t.Errorf("expected 0 pending, got %d", p)
	}
}

func TestPendingCountsQueuedTasks(t *testing.T) {
	s := New[string]()
	release := make(chan struct{})

	c1 := s.Submit("k", func() error { <-release; return nil })
	c2 := s.Submit("k", func() error { return nil })

	if p := s.Pending("k"); p != 2 {
		t.Errorf("expected 2 pending, got %d", p)
	}

	close(release)
	<-c1
	<-c2

	if p := s.Pending("k"); p != 0 {
		t.Errorf("expected 0 pending after drain, got %d", p)
	}
}

func TestDoReturnsValue(t *testing.T) {
	s := New[string]()

	v, err := Do(s, "k", func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}
