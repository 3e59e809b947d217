package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	t.Run("opposite orders do not deadlock", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				unlock := k.Lock("a", "b")
				unlock()
			}()
			go func() {
				defer wg.Done()
				unlock := k.Lock("b", "a")
				unlock()
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("lock ordering deadlocked")
		}
	})

	t.Run("duplicates and blanks", func(t *testing.T) {
		unlock := k.Lock("a", "a", "")
		unlock()
	})

	t.Run("released keys are forgotten", func(t *testing.T) {
		unlock := k.Lock("x", "y")
		assert.Len(t, k.locks, 2)
		unlock()
		assert.Empty(t, k.locks)
	})

	t.Run("same key serializes", func(t *testing.T) {
		unlock := k.Lock("z")
		acquired := make(chan struct{})
		go func() {
			u := k.Lock("z")
			close(acquired)
			u()
		}()

		select {
		case <-acquired:
			t.Fatal("second lock acquired while held")
		case <-time.After(50 * time.Millisecond):
		}
		unlock()
		<-acquired
	})
}
