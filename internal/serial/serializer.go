// Package serial provides a per-key serializer: at most one in-flight task per
// key, with unrelated keys running in parallel.
package serial

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTaskPanicked is returned to the submitter of a task that panicked.
var ErrTaskPanicked = errors.New("task panicked")

// chain is the tail of the work already queued for one key.
type chain struct {
	tail    chan struct{}
	pending int
}

// Serializer orders tasks per key. The zero value is not usable; call New.
type Serializer[K comparable] struct {
	mu     sync.Mutex
	chains map[K]*chain
}

// New creates an empty serializer.
func New[K comparable]() *Serializer[K] {
	return &Serializer[K]{
		chains: make(map[K]*chain),
	}
}

// Submit appends task to the chain for key and returns a channel that receives
// the task's own outcome once it has run. Submit never blocks, so a running
// task may submit more work for its own key; that work starts after the
// submitting task settles.
func (s *Serializer[K]) Submit(key K, task func() error) <-chan error {
	done := make(chan struct{})
	result := make(chan error, 1)

	s.mu.Lock()
	c, ok := s.chains[key]
	if !ok {
		c = &chain{}
		s.chains[key] = c
	}
	prev := c.tail
	c.tail = done
	c.pending++
	s.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		err := execute(task)
		close(done)
		s.release(key, c)
		result <- err
	}()

	return result
}

// Run submits task and waits for its outcome.
func (s *Serializer[K]) Run(key K, task func() error) error {
	return <-s.Submit(key, task)
}

// Pending returns the number of tasks queued or running for key.
func (s *Serializer[K]) Pending(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chains[key]; ok {
		return c.pending
	}
	return 0
}

// Len returns the number of keys with live chains.
func (s *Serializer[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

// release drops the bookkeeping entry once nothing is pending for key.
func (s *Serializer[K]) release(key K, c *chain) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.pending--
	if c.pending == 0 && s.chains[key] == c {
		delete(s.chains, key)
	}
}

// Do runs a value-returning task through s under key.
func Do[K comparable, T any](s *Serializer[K], key K, task func() (T, error)) (T, error) {
	var out T
	err := s.Run(key, func() error {
		v, err := task()
		out = v
		return err
	})
	return out, err
}

func execute(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task()
}
