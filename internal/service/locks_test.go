package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesPerKeyAndCleansUp(t *testing.T) {
	// Arrange
	locks := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)

	// Act
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("task-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	// Arrange
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")

	// Act
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()

	// Assert
	assert.Equal(t, 0, locks.size())
}
